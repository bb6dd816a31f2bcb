package player

import (
	"sync"
	"time"

	"AuraFM/logger"
)

// HeadlessTransport is a media transport without an audio backend: it
// reports the buffering lifecycle and advances the position on the wall
// clock while "playing". Used when the engine runs without a platform
// player, and as the default transport of the standalone binary.
//
// Callbacks are delivered in order on a dispatch goroutine, never from
// inside a control call.
type HeadlessTransport struct {
	mu        sync.Mutex
	listener  Listener
	state     TransportState
	playing   bool
	uri       string
	basePos   int64
	playedAt  time.Time
	prepDelay time.Duration

	callbacks chan func(Listener)
	closeOnce sync.Once
}

// NewHeadlessTransport creates a headless transport. prepDelay simulates
// the buffering time between Prepare and the ready callback.
func NewHeadlessTransport(prepDelay time.Duration) *HeadlessTransport {
	t := &HeadlessTransport{
		state:     TransportIdle,
		prepDelay: prepDelay,
		callbacks: make(chan func(Listener), 32),
	}
	go t.dispatch()
	return t
}

func (t *HeadlessTransport) dispatch() {
	for fn := range t.callbacks {
		t.mu.Lock()
		l := t.listener
		t.mu.Unlock()
		if l != nil {
			fn(l)
		}
	}
}

func (t *HeadlessTransport) emit(fn func(Listener)) {
	t.callbacks <- fn
}

// Close stops callback delivery.
func (t *HeadlessTransport) Close() {
	t.closeOnce.Do(func() { close(t.callbacks) })
}

func (t *HeadlessTransport) SetListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

func (t *HeadlessTransport) SetMediaItem(uri string, meta MediaMetadata) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uri = uri
	t.basePos = 0
	t.playing = false
	t.state = TransportIdle
	logger.Info("headless transport media item",
		logger.String("media", meta.MediaID),
		logger.String("uri", uri))
	return nil
}

func (t *HeadlessTransport) Prepare() error {
	t.mu.Lock()
	t.state = TransportBuffering
	delay := t.prepDelay
	t.mu.Unlock()

	t.emit(func(l Listener) { l.OnPlaybackStateChanged(TransportBuffering) })
	go func() {
		time.Sleep(delay)
		t.mu.Lock()
		if t.state != TransportBuffering {
			t.mu.Unlock()
			return
		}
		t.state = TransportReady
		t.mu.Unlock()
		t.emit(func(l Listener) { l.OnPlaybackStateChanged(TransportReady) })
	}()
	return nil
}

func (t *HeadlessTransport) Play() error {
	t.mu.Lock()
	t.playing = true
	t.playedAt = time.Now()
	t.mu.Unlock()
	t.emit(func(l Listener) { l.OnIsPlayingChanged(true) })
	return nil
}

func (t *HeadlessTransport) Pause() error {
	t.mu.Lock()
	if t.playing {
		t.basePos += time.Since(t.playedAt).Milliseconds()
		t.playing = false
	}
	t.state = TransportReady
	t.mu.Unlock()
	t.emit(func(l Listener) { l.OnIsPlayingChanged(false) })
	return nil
}

func (t *HeadlessTransport) SeekTo(positionMillis int64) error {
	t.mu.Lock()
	t.basePos = positionMillis
	t.playedAt = time.Now()
	t.state = TransportReady
	t.mu.Unlock()
	t.emit(func(l Listener) { l.OnPlaybackStateChanged(TransportReady) })
	return nil
}

func (t *HeadlessTransport) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return t.basePos + time.Since(t.playedAt).Milliseconds()
	}
	return t.basePos
}

func (t *HeadlessTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *HeadlessTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}
