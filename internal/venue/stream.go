/*

This file contains the venue notification stream: a websocket client that
subscribes to the engine's event feed and hands decoded notifications to the
ingestor. The connection is re-dialed with backoff on any read failure;
the venue replays missed notifications after a reconnect.

*/

package venue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/types"
)

const (
	pongWait         = 60 * time.Second
	pingPeriod       = 25 * time.Second
	reconnectBackoff = 5 * time.Second
	maxBackoff       = 2 * time.Minute
)

// EventHandler receives every decoded venue notification.
type EventHandler func(types.VenueEvent)

// EventStream maintains the websocket subscription to the venue feed.
type EventStream struct {
	log     zerolog.Logger
	url     string
	handler EventHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventStream creates a stream for the given websocket URL. Events are
// delivered to the handler in feed order from a single goroutine.
func NewEventStream(url string, handler EventHandler) *EventStream {
	return &EventStream{
		log:     logger.GetForComponent("venue_stream"),
		url:     url,
		handler: handler,
	}
}

// Start dials the feed and begins delivering events. It returns immediately;
// the read loop runs until Stop is called.
func (s *EventStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop closes the subscription and waits for the read loop to exit.
func (s *EventStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *EventStream) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := reconnectBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Error().Err(err).Str("url", s.url).Dur("retryIn", backoff).Msg("Failed to dial venue feed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		s.log.Info().Str("url", s.url).Msg("Connected to venue feed")
		backoff = reconnectBackoff

		s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Msg("Venue feed disconnected, reconnecting")
	}
}

// readLoop consumes one connection until it fails or the context ends.
func (s *EventStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	// Keepalive pings; the venue drops silent subscribers.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("Venue feed read failed")
			}
			return
		}

		var event types.VenueEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.log.Error().Err(err).Str("payload", string(payload)).Msg("Failed to decode venue event, skipping")
			continue
		}
		if event.Kind == "" {
			s.log.Warn().Str("payload", string(payload)).Msg("Venue event missing kind, skipping")
			continue
		}

		s.handler(event)
	}
}
