package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// DefaultStreamURL is the spot market data stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443"

const (
	// writeWait bounds control frame writes.
	writeWait = 10 * time.Second
	// readWait is how long a stream may stay silent before it is treated
	// as dead. Partial depth streams push every 100ms or 1s.
	readWait = 30 * time.Second
)

// StreamPath returns the partial book stream path for symbol with the given
// number of levels (5, 10 or 20).
func StreamPath(symbol string, levels int, fast bool) string {
	p := fmt.Sprintf("/ws/%s@depth%d", strings.ToLower(symbol), levels)
	if fast {
		p += "@100ms"
	}
	return p
}

// DepthStream reads partial book updates from one websocket connection. It
// does not reconnect; the caller owns the retry policy.
type DepthStream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// DialDepth connects to baseURL+path.
func DialDepth(ctx context.Context, baseURL, path string) (*DepthStream, error) {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("binance/ws: connect: %w", err)
	}
	// The server pings every few minutes; the default handler answers with a
	// pong. Any frame extends the deadline.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &DepthStream{conn: conn}, nil
}

// Read blocks for the next depth message. Any error means the connection is
// unusable and is reported wrapped in domain.ErrWSDisconnect.
func (s *DepthStream) Read() (DepthMessage, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return DepthMessage{}, fmt.Errorf("binance/ws: read: %v: %w", err, domain.ErrWSDisconnect)
	}
	var msg DepthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return DepthMessage{}, fmt.Errorf("binance/ws: decode depth: %w", err)
	}
	return msg, nil
}

// Close sends a close frame and closes the connection.
func (s *DepthStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return s.conn.Close()
}
