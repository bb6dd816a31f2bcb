package model

// StreamType is the transport type of a resolved media endpoint.
type StreamType int

const (
	StreamLiveAAC StreamType = iota
	StreamHLSVOD
	StreamHLSEvent
	StreamDirectFile
)

func (t StreamType) String() string {
	switch t {
	case StreamLiveAAC:
		return "LIVE_AAC"
	case StreamHLSVOD:
		return "HLS_VOD"
	case StreamHLSEvent:
		return "HLS_EVENT"
	case StreamDirectFile:
		return "DIRECT_FILE"
	default:
		return "UNKNOWN"
	}
}

// Stream is a concrete resolved media endpoint for a Playable.
type Stream struct {
	Type StreamType `json:"type"`
	URI  string     `json:"uri"`
}
