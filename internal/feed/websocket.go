package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 30 * time.Second
	wsPingInterval     = 15 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// WebSocketFeed streams ticks from a JSON websocket endpoint. Each text
// message carries one RawUpdate; malformed messages raise data-quality
// events without terminating the stream, while transport errors do.
type WebSocketFeed struct {
	endpoint string
	symbols  []string
	log      *logger.Logger

	conn       *websocket.Conn
	writeMutex sync.Mutex

	ticks   chan types.Tick
	quality chan *apperrors.DataQualityError

	closeOnce sync.Once
	done      chan struct{}

	errMutex sync.Mutex
	err      error
}

// NewWebSocketFeed creates a websocket feed for the given endpoint and
// symbol subscription list.
func NewWebSocketFeed(endpoint string, symbols []string, log *logger.Logger) *WebSocketFeed {
	return &WebSocketFeed{
		endpoint: endpoint,
		symbols:  symbols,
		log:      log.Component("ws_feed"),
		ticks:    make(chan types.Tick, 256),
		quality:  make(chan *apperrors.DataQualityError, 64),
		done:     make(chan struct{}),
	}
}

type wsSubscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Start dials the endpoint, subscribes, and launches the read loop
func (f *WebSocketFeed) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", f.endpoint, err)
	}
	f.conn = conn

	sub := wsSubscribeRequest{Op: "subscribe", Args: f.symbols}
	if err := f.writeJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	f.log.Info("connected to %s, subscribed to %d symbols", f.endpoint, len(f.symbols))

	go f.readLoop(ctx)
	go f.pingLoop(ctx)
	return nil
}

func (f *WebSocketFeed) writeJSON(v interface{}) error {
	f.writeMutex.Lock()
	defer f.writeMutex.Unlock()
	f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WebSocketFeed) readLoop(ctx context.Context) {
	defer close(f.ticks)
	defer close(f.quality)

	normalizer := NewNormalizer()
	f.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, message, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				// Clean shutdown, not a disconnect
			default:
				f.setErr(apperrors.Wrap(err, apperrors.ErrorCategoryFeed, "ws_feed", "read"))
				f.log.Error("feed disconnected: %v", err)
			}
			return
		}
		f.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var raw RawUpdate
		if err := json.Unmarshal(message, &raw); err != nil {
			f.raiseQuality(apperrors.NewDataQualityError("?", "unparseable message"))
			continue
		}

		tick, qerr := normalizer.Normalize(raw)
		if qerr != nil {
			f.raiseQuality(qerr)
			continue
		}

		select {
		case f.ticks <- tick:
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

func (f *WebSocketFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.writeMutex.Lock()
			f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := f.conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMutex.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

// raiseQuality delivers a data-quality event without ever blocking the
// read loop. If nobody drains the channel the event is dropped.
func (f *WebSocketFeed) raiseQuality(qerr *apperrors.DataQualityError) {
	select {
	case f.quality <- qerr:
	default:
	}
}

func (f *WebSocketFeed) setErr(err error) {
	f.errMutex.Lock()
	defer f.errMutex.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// Ticks returns the tick channel
func (f *WebSocketFeed) Ticks() <-chan types.Tick {
	return f.ticks
}

// Quality returns the data-quality event channel
func (f *WebSocketFeed) Quality() <-chan *apperrors.DataQualityError {
	return f.quality
}

// Err returns the terminal error after the tick channel closed
func (f *WebSocketFeed) Err() error {
	f.errMutex.Lock()
	defer f.errMutex.Unlock()
	return f.err
}

// Close stops the feed and closes the connection
func (f *WebSocketFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		if f.conn != nil {
			err = f.conn.Close()
		}
	})
	return err
}
