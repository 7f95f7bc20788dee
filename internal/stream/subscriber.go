// Package stream consumes a simulator's /ws/telemetry feed from another process.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
	handshakeTimeout   = 10 * time.Second
)

// Subscriber dials a telemetry feed and keeps reconnecting with exponential
// backoff until its context is cancelled.
type Subscriber struct {
	url       string
	dialer    websocket.Dialer
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewSubscriber returns a subscriber for a ws:// or wss:// feed URL.
func NewSubscriber(url string) *Subscriber {
	return &Subscriber{
		url:       url,
		dialer:    websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		baseDelay: reconnectBaseDelay,
		maxDelay:  reconnectMaxDelay,
	}
}

// Run delivers decoded frames to out in arrival order until ctx is
// cancelled. out is closed on return.
func (s *Subscriber) Run(ctx context.Context, out chan<- sim.Frame) error {
	defer close(out)
	delay := s.baseDelay
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			logrus.Infof("Subscribed to telemetry feed %s", s.url)
			delay = s.baseDelay
			err = s.consume(ctx, conn, out)
		}
		if ctx.Err() != nil {
			return nil
		}
		logrus.Warnf("Telemetry feed %s: %v; reconnecting in %s", s.url, err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(2*delay, s.maxDelay)
	}
}

// consume reads one connection until it fails or ctx is cancelled.
func (s *Subscriber) consume(ctx context.Context, conn *websocket.Conn, out chan<- sim.Frame) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		frame, err := Decode(data)
		if err != nil {
			logrus.Warnf("Dropping malformed telemetry frame: %v", err)
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Decode parses one feed message into a Frame.
func Decode(data []byte) (sim.Frame, error) {
	var f sim.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return sim.Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Tick < 0 {
		return sim.Frame{}, fmt.Errorf("decoding frame: negative tick %d", f.Tick)
	}
	return f, nil
}
