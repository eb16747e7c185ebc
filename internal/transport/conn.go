package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// outboundFrame is either a JSON text payload, an opaque binary payload, or
// a header+payload pair that must be written back to back (the header
// describes the binary frame that immediately follows it, e.g.
// SynthesizedAudioHeader + raw PCM).
type outboundFrame struct {
	text       []byte
	binary     []byte
	pairHeader []byte
	pairBody   []byte
}

// Conn wraps one client WebSocket connection. It implements session.Sender
// and owns the single writer goroutine that serializes every outbound
// message, matching the priority/normal queue discipline the teacher uses
// for its live-session writer: control and error messages (priority) always
// drain ahead of transcription/translation/audio traffic (normal), and the
// writer is the only goroutine ever calling WriteMessage.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	priority chan outboundFrame
	normal   chan outboundFrame
	done     chan struct{}

	writeTimeout time.Duration
	pingEvery    time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// Config bundles the writer's tunables (spec §6: WS ping interval/write
// timeout are configurable).
type Config struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	OutboundQueueSize int
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		OutboundQueueSize: 64,
	}
}

// NewConn returns the wrapped connection without starting anything; the
// writer and heartbeat loop is Run, which the caller starts in its own
// goroutine and which blocks until the connection closes.
func NewConn(ws *websocket.Conn, cfg Config, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Conn{
		ws:           ws,
		logger:       logger,
		priority:     make(chan outboundFrame, cfg.OutboundQueueSize),
		normal:       make(chan outboundFrame, cfg.OutboundQueueSize),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		pingEvery:    cfg.PingInterval,
	}
}

// Send marshals v as JSON and enqueues it on the normal queue, unless v is a
// PipelineError or PartnerDisconnected, which jump the priority queue —
// those must reach the client even while translation/audio traffic is
// backed up.
func (c *Conn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := outboundFrame{text: b}
	switch v.(type) {
	case *PipelineError, PipelineError, *PartnerDisconnected, PartnerDisconnected:
		return c.enqueue(c.priority, frame)
	default:
		return c.enqueue(c.normal, frame)
	}
}

// SendBinary enqueues a raw audio frame on the normal queue.
func (c *Conn) SendBinary(b []byte) error {
	return c.enqueue(c.normal, outboundFrame{binary: b})
}

// SendPaired enqueues a JSON header immediately followed by its binary
// payload, guaranteed to be written back to back by the single writer
// goroutine (shaped for SynthesizedAudioHeader + audio). Nothing in this
// tree calls it: synthesized audio reaches the partner as bare binary
// frames through session.Sender.SendBinary.
func (c *Conn) SendPaired(header any, body []byte) error {
	h, err := json.Marshal(header)
	if err != nil {
		return err
	}
	return c.enqueue(c.normal, outboundFrame{pairHeader: h, pairBody: body})
}

func (c *Conn) enqueue(ch chan outboundFrame, frame outboundFrame) error {
	select {
	case <-c.closed:
		return errors.New("transport: connection closed")
	default:
	}
	select {
	case ch <- frame:
		return nil
	case <-c.closed:
		return errors.New("transport: connection closed")
	}
}

// Close stops the writer loop and closes the underlying socket with the
// given WebSocket close code (spec §7's structured 1000/1008/1011 codes).
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(2 * time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.closed)
		close(c.done)
	})
	return nil
}

// Run drains the priority/normal queues and writes a ping on PingInterval,
// exactly like the teacher's outboundWriter.Run — hard priority on the
// priority channel, ping interleaved with normal traffic otherwise. It
// returns when Close has been called or a write fails.
func (c *Conn) Run() error {
	ticker := time.NewTicker(c.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.drainPriority()
			return nil
		default:
		}

		select {
		case frame, ok := <-c.priority:
			if ok {
				if err := c.write(frame); err != nil {
					return err
				}
			}
			continue
		default:
		}

		select {
		case <-c.done:
			c.drainPriority()
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-c.priority:
			if !ok {
				continue
			}
			if err := c.write(frame); err != nil {
				return err
			}
		case frame, ok := <-c.normal:
			if !ok {
				continue
			}
			if err := c.write(frame); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) pingInterval() time.Duration {
	return c.pingEvery
}

func (c *Conn) drainPriority() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-c.priority:
			if !ok {
				return
			}
			_ = c.write(frame)
		default:
			return
		}
	}
}

func (c *Conn) write(frame outboundFrame) error {
	deadline := time.Now().Add(c.writeTimeout)
	if frame.pairHeader != nil {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame.pairHeader); err != nil {
			return err
		}
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.ws.WriteMessage(websocket.BinaryMessage, frame.pairBody)
	}
	if frame.text != nil {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.ws.WriteMessage(websocket.TextMessage, frame.text)
	}
	if frame.binary != nil {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.ws.WriteMessage(websocket.BinaryMessage, frame.binary)
	}
	return nil
}
