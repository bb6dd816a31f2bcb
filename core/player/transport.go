package player

// TransportState mirrors the media transport's buffering lifecycle.
type TransportState int

const (
	TransportIdle TransportState = iota
	TransportBuffering
	TransportReady
	TransportEnded
)

// MediaMetadata accompanies a media item for lockscreen/now-playing surfaces.
type MediaMetadata struct {
	MediaID    string
	Title      string
	Subtitle   string
	ArtworkURL string
}

// Listener receives the transport's callbacks.
type Listener interface {
	OnPlaybackStateChanged(state TransportState)
	OnIsPlayingChanged(playing bool)
	OnPlayerError(err error)
	OnTimelineChanged(durationMillis int64)
}

// Transport is the underlying media player control surface.
type Transport interface {
	SetMediaItem(uri string, meta MediaMetadata) error
	Prepare() error
	Play() error
	Pause() error
	SeekTo(positionMillis int64) error
	Position() int64
	State() TransportState
	IsPlaying() bool
	SetListener(l Listener)
}
