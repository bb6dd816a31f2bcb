package graph

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"AuraFM/core/watch"
	"AuraFM/logger"

	"github.com/gorilla/websocket"
)

// EventKind classifies transport events.
type EventKind int

const (
	EventOpened EventKind = iota
	EventFailed
	EventMessage
)

// Event is one transport signal: the channel opened, the channel failed,
// or a catalog message arrived.
type Event struct {
	Kind     EventKind
	Envelope *Envelope
	Err      error
}

// Transport is a message-based duplex channel to the catalog service.
// Reconnecting after a failure is the transport's own job; consumers only
// react to the Opened/Failed signals.
type Transport interface {
	Start()
	Stop()
	Send(env Envelope) error
	Events() *watch.Bus[Event]
}

const (
	dialTimeout    = 10 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// wsTransport is the websocket implementation of Transport.
type wsTransport struct {
	url    string
	events *watch.Bus[Event]

	mu      sync.Mutex
	conn    *websocket.Conn
	stop    chan struct{}
	running bool
}

// NewWebSocketTransport creates a transport dialing the given endpoint.
func NewWebSocketTransport(url string) Transport {
	return &wsTransport{
		url:    url,
		events: watch.NewBus[Event](),
	}
}

func (t *wsTransport) Events() *watch.Bus[Event] {
	return t.events
}

// Start launches the connect loop. Safe to call once per Stop.
func (t *wsTransport) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go t.run(stop)
}

// Stop tears the connection down and halts reconnecting.
func (t *wsTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stop)
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Send writes a message on the open channel.
func (t *wsTransport) Send(env Envelope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not connected")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// run dials, pumps messages and redials with capped exponential backoff
// until stopped.
func (t *wsTransport) run(stop chan struct{}) {
	backoff := initialBackoff
	for {
		select {
		case <-stop:
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		conn, _, err := dialer.Dial(t.url, nil)
		if err != nil {
			logger.Warn("catalog channel dial failed",
				logger.String("url", t.url),
				logger.Duration("retryIn", backoff),
				logger.ErrorField(err))
			t.events.Publish(Event{Kind: EventFailed, Err: err})

			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		backoff = initialBackoff
		logger.Info("catalog channel opened", logger.String("url", t.url))
		t.events.Publish(Event{Kind: EventOpened})

		t.readLoop(conn, stop)

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()

		select {
		case <-stop:
			return
		default:
			t.events.Publish(Event{Kind: EventFailed, Err: fmt.Errorf("catalog channel closed")})
		}
	}
}

// readLoop decodes incoming frames until the connection dies.
func (t *wsTransport) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// A frame that is not a catalog envelope is a schema mismatch.
			logger.Error("malformed catalog message", logger.ErrorField(err))
			continue
		}
		t.events.Publish(Event{Kind: EventMessage, Envelope: &env})
	}
}
