package symbol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrRejected is returned when the node reports a transaction status error.
var ErrRejected = errors.New("transaction rejected")

// ErrListenerClosed is returned to waiters when the connection goes away.
var ErrListenerClosed = errors.New("listener closed")

// ListenerConfig configures Listener behavior.
type ListenerConfig struct {
	// HandshakeTimeout bounds the dial and the uid greeting.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultListenerConfig returns default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WebSocketURL maps a node REST URL to its /ws endpoint.
func WebSocketURL(nodeURL string) string {
	u := strings.TrimRight(nodeURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Listener implements Confirmer with the node WebSocket channels
// confirmedAdded/<address> and status/<address>.
type Listener struct {
	config ListenerConfig
	uid    string

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// expected holds announced hashes nobody waits for yet; outcomes holds
	// their results if those arrive first. Other hashes are dropped.
	expected map[string]struct{}
	outcomes map[string]error
	waiters  map[string]chan error
	mu       sync.Mutex
	readErr  error

	done chan struct{}
	wg   sync.WaitGroup
}

// NewListener connects to endpoint and subscribes to address's channels.
func NewListener(ctx context.Context, endpoint string, address Address, config *ListenerConfig) (*Listener, error) {
	cfg := DefaultListenerConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	l := &Listener{
		config:   cfg,
		conn:     conn,
		expected: make(map[string]struct{}),
		outcomes: make(map[string]error),
		waiters:  make(map[string]chan error),
		done:     make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	var hello struct {
		UID string `json:"uid"`
	}
	if err := conn.ReadJSON(&hello); err != nil || hello.UID == "" {
		conn.Close()
		return nil, fmt.Errorf("websocket greeting: missing uid (%v)", err)
	}
	conn.SetReadDeadline(time.Time{})
	l.uid = hello.UID

	for _, channel := range []string{"confirmedAdded", "status"} {
		if err := l.write(subscribeRequest{UID: l.uid, Subscribe: channel + "/" + address.String()}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}

	l.wg.Add(1)
	go l.readLoop()

	if cfg.PingInterval > 0 {
		l.wg.Add(1)
		go l.pingLoop()
	}

	return l, nil
}

// UID returns the session id assigned by the node.
func (l *Listener) UID() string { return l.uid }

// Expect keeps the outcome of hash until AwaitConfirmed collects it.
func (l *Listener) Expect(hash string) {
	hash = strings.ToUpper(hash)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.outcomes[hash]; !ok {
		l.expected[hash] = struct{}{}
	}
}

// AwaitConfirmed blocks until hash is confirmed (nil), rejected (ErrRejected),
// the connection drops, or ctx ends.
func (l *Listener) AwaitConfirmed(ctx context.Context, hash string) error {
	hash = strings.ToUpper(hash)

	l.mu.Lock()
	if err, ok := l.outcomes[hash]; ok {
		delete(l.outcomes, hash)
		l.mu.Unlock()
		return err
	}
	if l.readErr != nil {
		err := l.readErr
		delete(l.expected, hash)
		l.mu.Unlock()
		return err
	}
	ch := make(chan error, 1)
	l.waiters[hash] = ch
	delete(l.expected, hash)
	l.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.waiters, hash)
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	close(l.done)

	l.connMu.Lock()
	l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.conn.Close()
	l.connMu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *Listener) write(v interface{}) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	return l.conn.WriteJSON(v)
}

func (l *Listener) readLoop() {
	defer l.wg.Done()

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			l.fail(fmt.Errorf("%w: %v", ErrListenerClosed, err))
			return
		}
		l.handleMessage(message)
	}
}

func (l *Listener) pingLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.connMu.Lock()
			l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.config.WriteTimeout))
			l.connMu.Unlock()
		}
	}
}

func (l *Listener) handleMessage(message []byte) {
	var msg channelMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	channel, _, _ := strings.Cut(msg.Topic, "/")
	switch channel {
	case "confirmedAdded":
		var data confirmedData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Meta.Hash == "" {
			return
		}
		l.resolve(data.Meta.Hash, nil)
	case "status":
		var data statusData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Hash == "" {
			return
		}
		l.resolve(data.Hash, fmt.Errorf("%w: %s", ErrRejected, data.Code))
	}
}

func (l *Listener) resolve(hash string, outcome error) {
	hash = strings.ToUpper(hash)

	l.mu.Lock()
	defer l.mu.Unlock()

	if ch, ok := l.waiters[hash]; ok {
		delete(l.waiters, hash)
		ch <- outcome
		return
	}
	if _, ok := l.expected[hash]; ok {
		delete(l.expected, hash)
		l.outcomes[hash] = outcome
	}
}

func (l *Listener) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readErr = err
	for hash, ch := range l.waiters {
		delete(l.waiters, hash)
		ch <- err
	}
}

type subscribeRequest struct {
	UID       string `json:"uid"`
	Subscribe string `json:"subscribe"`
}

type channelMessage struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type confirmedData struct {
	Meta struct {
		Hash string `json:"hash"`
	} `json:"meta"`
}

type statusData struct {
	Hash string `json:"hash"`
	Code string `json:"code"`
}
