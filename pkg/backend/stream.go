package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay is the fixed pause between reconnect attempts on the
// tick channel. There is intentionally no backoff growth and no retry ceiling:
// the terminal is expected to stay open indefinitely.
const DefaultReconnectDelay = 1500 * time.Millisecond

// StreamClient manages streaming channels to the backend tick distributor.
type StreamClient struct {
	WSURL          string
	TerminalID     string
	ReconnectDelay time.Duration
	dialer         *websocket.Dialer
}

// NewStreamClient builds a websocket client against the backend stream host.
func NewStreamClient(wsURL, terminalID string) *StreamClient {
	return &StreamClient{
		WSURL:          strings.TrimRight(wsURL, "/"),
		TerminalID:     terminalID,
		ReconnectDelay: DefaultReconnectDelay,
		dialer:         websocket.DefaultDialer,
	}
}

// TickSubscription is one logical subscription to a symbol set. Ticks carries
// parsed quotes in arrival order; Connectivity flips false the moment the
// underlying connection drops and true once a connection is (re)established,
// always before any tick from that connection is delivered.
type TickSubscription struct {
	Ticks        <-chan Tick
	Connectivity <-chan bool

	mu   sync.Mutex
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Close tears the subscription down. It is idempotent and cancels any pending
// reconnect timer, so no further connection attempt happens after it returns.
func (s *TickSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *TickSubscription) setConn(c *websocket.Conn) {
	s.mu.Lock()
	s.conn = c
	closedNow := s.closed()
	s.mu.Unlock()
	// Close raced with the dial: make sure the fresh connection dies too.
	if closedNow && c != nil {
		_ = c.Close()
	}
}

func (s *TickSubscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// SubscribeTicks opens a reconnecting stream for the given symbol set.
// Distinct symbol sets get distinct subscriptions; the subscription message
// {"symbols": [...]} is re-sent on every (re)connect.
func (c *StreamClient) SubscribeTicks(ctx context.Context, symbols []string) *TickSubscription {
	ticks := make(chan Tick, 100)
	connectivity := make(chan bool, 8)
	sub := &TickSubscription{
		Ticks:        ticks,
		Connectivity: connectivity,
		done:         make(chan struct{}),
	}

	go c.runTicks(ctx, symbols, sub, ticks, connectivity)
	return sub
}

func (c *StreamClient) runTicks(ctx context.Context, symbols []string, sub *TickSubscription, ticks chan<- Tick, connectivity chan bool) {
	defer close(ticks)
	defer close(connectivity)

	u := fmt.Sprintf("%s/ws/ticks?terminal_id=%s", c.WSURL, c.TerminalID)
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for {
		if sub.closed() || ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, u, nil)
		if err == nil {
			sub.setConn(conn)
			if err = conn.WriteJSON(map[string][]string{"symbols": symbols}); err == nil {
				notify(connectivity, true)
				// DialContext stops honoring ctx once the handshake is done,
				// so an established conn needs its own watcher to unblock the
				// reader when the context dies. Close() handles sub.done.
				watch := make(chan struct{})
				go func() {
					select {
					case <-ctx.Done():
						_ = conn.Close()
					case <-sub.done:
					case <-watch:
					}
				}()
				c.readTicks(conn, sub, ticks)
				close(watch)
			} else {
				_ = conn.Close()
			}
			sub.setConn(nil)
		}
		notify(connectivity, false)

		if sub.closed() || ctx.Err() != nil {
			return
		}

		// Fixed-delay reconnect; Close cancels the pending timer.
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-sub.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// readTicks pumps frames from one connection until it dies. Malformed frames
// are dropped without killing the channel.
func (c *StreamClient) readTicks(conn *websocket.Conn, sub *TickSubscription, ticks chan<- Tick) {
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env frame
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != "tick" {
			continue
		}
		var tf tickFrame
		if err := json.Unmarshal(msg, &tf); err != nil || tf.Symbol == "" {
			continue
		}

		select {
		case ticks <- tf.Tick:
		case <-sub.done:
			return
		}
	}
}

// ContractSubscription streams lifecycle updates for one contract until the
// contract settles, the backend hangs up, or Close is called.
type ContractSubscription struct {
	Updates <-chan ContractUpdate

	once sync.Once
	conn *websocket.Conn
}

// Close stops the subscription; safe to call more than once.
func (s *ContractSubscription) Close() {
	s.once.Do(func() {
		if s.conn == nil {
			return
		}
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
}

// SubscribeContract opens a tracking stream scoped to one contract id.
func (c *StreamClient) SubscribeContract(ctx context.Context, contractID string) (*ContractSubscription, error) {
	u := fmt.Sprintf("%s/ws/contracts/%s?terminal_id=%s", c.WSURL, contractID, c.TerminalID)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial contract stream %s: %w", contractID, err)
	}

	updates := make(chan ContractUpdate, 32)
	sub := &ContractSubscription{Updates: updates, conn: conn}

	go func() {
		defer close(updates)
		defer sub.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cf contractFrame
			if err := json.Unmarshal(msg, &cf); err != nil || cf.Type != "contract" || cf.ContractID == "" {
				continue
			}
			select {
			case updates <- cf.ContractUpdate:
			default:
				// drop if the consumer lags; the next frame supersedes anyway
			}
		}
	}()

	return sub, nil
}

// notify pushes a connectivity transition without ever blocking the stream.
// When the buffer is full the oldest pending value is discarded so a slow
// consumer always ends on the latest state rather than an inverted one.
func notify(ch chan bool, up bool) {
	select {
	case ch <- up:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- up:
	default:
	}
}
