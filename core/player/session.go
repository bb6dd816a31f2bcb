package player

import (
	"fmt"
	"sync"
	"time"

	"AuraFM/core/watch"
	"AuraFM/logger"
	"AuraFM/model"
)

// ErrorCode identifies which transport operation failed.
type ErrorCode string

const (
	ErrCodeSetMediaItem ErrorCode = "set_media_item"
	ErrCodeStart        ErrorCode = "start"
	ErrCodePause        ErrorCode = "pause"
	ErrCodeSeek         ErrorCode = "seek"
	ErrCodePlayback     ErrorCode = "playback"
)

// Error is a playback failure surfaced through the Error state.
// Recovery is user-initiated only: calling Play again.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("playback error (%s): %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// inner is the fine-grained session state driving the transitions.
type inner int

const (
	innerIdle inner = iota
	innerStarting
	innerPlaying
	innerBuffering
	innerPausing
	innerPaused
	innerSeeking
	innerRetrying
	innerError
)

// StateKind is the externally observable playback state.
type StateKind int

const (
	KindIdle StateKind = iota
	KindLoading
	KindPaused
	KindPlaying
	KindError
)

// LoadingReason qualifies the Loading state.
type LoadingReason string

const (
	ReasonStarting  LoadingReason = "STARTING"
	ReasonPausing   LoadingReason = "PAUSING"
	ReasonBuffering LoadingReason = "BUFFERING_TO_CATCH_UP"
	ReasonSeeking   LoadingReason = "SEEKING"
)

// State is what consumers observe; the inner vocabulary stays private.
type State struct {
	Kind   StateKind
	Reason LoadingReason
	Err    *Error
}

const pollInterval = 500 * time.Millisecond

// Session reconciles user intents, transport callbacks and stream selection
// into the observable playback states. It owns the current playable, stream
// and transport exclusively.
type Session struct {
	mu sync.Mutex

	transport Transport
	resolver  func() ResolverConfig
	vault     VaultSigner

	state           inner
	playImmediately bool
	retryCount      int
	lastErr         *Error
	current         *model.Playable
	stream          *model.Stream

	pollStop chan struct{}

	stateCell    *watch.Cell[State]
	positionCell *watch.Cell[int64]
	durationCell *watch.Cell[int64]
}

// NewSession creates a playback session over the given media transport.
// resolver supplies the current endpoint configuration; vault may be nil.
func NewSession(transport Transport, resolver func() ResolverConfig, vault VaultSigner) *Session {
	s := &Session{
		transport:    transport,
		resolver:     resolver,
		vault:        vault,
		state:        innerIdle,
		stateCell:    watch.NewCell(State{Kind: KindIdle}),
		positionCell: watch.NewCell[int64](0),
		durationCell: watch.NewCell[int64](0),
	}
	transport.SetListener(s)
	return s
}

// StateCell exposes the observable playback state.
func (s *Session) StateCell() *watch.Cell[State] { return s.stateCell }

// PositionCell publishes the polled playback position in milliseconds.
func (s *Session) PositionCell() *watch.Cell[int64] { return s.positionCell }

// DurationCell publishes the media duration in milliseconds.
func (s *Session) DurationCell() *watch.Cell[int64] { return s.durationCell }

// Current returns the playable the session is holding, if any.
func (s *Session) Current() *model.Playable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// setInner records the new fine-grained state and publishes its external
// projection.
func (s *Session) setInner(st inner) {
	s.state = st
	s.stateCell.Set(s.external())
}

// external translates the inner vocabulary into the observation contract.
func (s *Session) external() State {
	switch s.state {
	case innerIdle:
		return State{Kind: KindIdle}
	case innerStarting, innerRetrying:
		return State{Kind: KindLoading, Reason: ReasonStarting}
	case innerPlaying:
		return State{Kind: KindPlaying}
	case innerBuffering:
		return State{Kind: KindLoading, Reason: ReasonBuffering}
	case innerPausing:
		return State{Kind: KindLoading, Reason: ReasonPausing}
	case innerPaused:
		return State{Kind: KindPaused}
	case innerSeeking:
		return State{Kind: KindLoading, Reason: ReasonSeeking}
	default:
		return State{Kind: KindError, Err: s.lastErr}
	}
}

func (s *Session) failLocked(code ErrorCode, err error) {
	s.stopPollingLocked()
	s.lastErr = &Error{Code: code, Err: err}
	logger.Error("playback failed",
		logger.String("code", string(code)),
		logger.ErrorField(err))
	s.setInner(innerError)
}

// Play resumes in place. Valid from Paused (resumes) and Error (retries the
// last playable from scratch); a no-op in every other state.
func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case innerPaused:
		s.setInner(innerStarting)
		// A transport already sitting in a ready buffering state plays
		// directly; otherwise it has to re-prepare first.
		if s.transport.State() == TransportReady {
			if err := s.transport.Play(); err != nil {
				s.failLocked(ErrCodeStart, err)
			}
		} else {
			if err := s.transport.Prepare(); err != nil {
				s.failLocked(ErrCodeStart, err)
			}
		}
	case innerError:
		if s.current == nil {
			return
		}
		s.retryCount++
		s.setInner(innerRetrying)
		s.playItemLocked(*s.current)
	default:
		// no-op
	}
}

// PlayItem resolves the preferred stream for the playable and starts it.
// A playable with no stream candidate is silently ignored.
func (s *Session) PlayItem(p model.Playable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount = 0
	s.playItemLocked(p)
}

func (s *Session) playItemLocked(p model.Playable) {
	stream, ok := PreferredStream(p, s.resolver(), s.vault)
	if !ok {
		// Deliberate: no state transition and no surfaced error.
		logger.Debug("playable has no stream candidate",
			logger.String("media", p.MediaID()))
		return
	}

	s.stopPollingLocked()
	s.current = &p
	s.stream = &stream
	s.lastErr = nil

	meta := MediaMetadata{
		MediaID:    p.MediaID(),
		Title:      p.Title(),
		Subtitle:   p.Subtitle(),
		ArtworkURL: p.ArtworkURL(),
	}
	if err := s.transport.SetMediaItem(stream.URI, meta); err != nil {
		s.failLocked(ErrCodeSetMediaItem, err)
		return
	}
	s.setInner(innerStarting)
	if err := s.transport.Prepare(); err != nil {
		s.failLocked(ErrCodeStart, err)
	}
}

// Pause is valid only while Playing.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != innerPlaying {
		return
	}
	s.setInner(innerPausing)
	if err := s.transport.Pause(); err != nil {
		s.failLocked(ErrCodePause, err)
	}
}

// SeekTo jumps to the target position. Ignored while a seek is in flight.
// Whether playback resumes afterwards depends on the state at call time.
func (s *Session) SeekTo(targetMillis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == innerSeeking {
		return
	}
	// Polling stops before the seek so a stale position read never races
	// the in-flight seek.
	s.stopPollingLocked()
	s.playImmediately = s.state == innerPlaying
	s.setInner(innerSeeking)
	if err := s.transport.SeekTo(targetMillis); err != nil {
		s.failLocked(ErrCodeSeek, err)
	}
}

// OnPlaybackStateChanged implements Listener.
func (s *Session) OnPlaybackStateChanged(state TransportState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case TransportReady:
		s.handleReadyLocked()
	case TransportEnded:
		s.stopPollingLocked()
		s.setInner(innerIdle)
	}
}

func (s *Session) handleReadyLocked() {
	switch s.state {
	case innerSeeking:
		if s.playImmediately {
			if err := s.transport.Play(); err != nil {
				s.failLocked(ErrCodeStart, err)
			}
			return
		}
		s.positionCell.Set(s.transport.Position())
		s.setInner(innerPaused)
	case innerStarting, innerRetrying:
		// Event-style streams can resume mid-buffer; force playback from
		// the stream's logical start.
		if s.stream != nil && s.stream.Type == model.StreamHLSEvent && s.transport.Position() > 0 {
			if err := s.transport.SeekTo(0); err != nil {
				s.failLocked(ErrCodeSeek, err)
			}
			return
		}
		if err := s.transport.Play(); err != nil {
			s.failLocked(ErrCodeStart, err)
		}
	}
}

// OnIsPlayingChanged implements Listener.
func (s *Session) OnIsPlayingChanged(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playing {
		s.positionCell.Set(s.transport.Position())
		s.startPollingLocked()
		s.setInner(innerPlaying)
		return
	}

	s.stopPollingLocked()
	if s.state == innerSeeking || s.state == innerError {
		return
	}
	switch s.transport.State() {
	case TransportBuffering:
		s.setInner(innerBuffering)
	case TransportReady:
		s.setInner(innerPaused)
	default:
		s.setInner(innerIdle)
	}
}

// OnPlayerError implements Listener.
func (s *Session) OnPlayerError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(ErrCodePlayback, err)
}

// OnTimelineChanged implements Listener.
func (s *Session) OnTimelineChanged(durationMillis int64) {
	s.durationCell.Set(durationMillis)
}

// startPollingLocked samples the transport position every 500ms until the
// loop is stopped. Restarted only when playback begins again.
func (s *Session) startPollingLocked() {
	if s.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.positionCell.Set(s.transport.Position())
			}
		}
	}()
}

func (s *Session) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

// Close stops polling and closes the published cells.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopPollingLocked()
	s.mu.Unlock()
	s.stateCell.Close()
	s.positionCell.Close()
	s.durationCell.Close()
}
