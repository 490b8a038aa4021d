package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"share-vault/internal/domain"
	"share-vault/internal/observability"
)

// ErrClientClosed is returned by SubscribeAccount after Close.
var ErrClientClosed = errors.New("websocket client closed")

// WSConfig configures a Subscriber.
type WSConfig struct {
	ReconnectDelay    time.Duration // first redial delay, doubled per failure
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration
	Commitment        string

	// Logger receives connection events. Nil uses log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns the default subscriber configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
	}
}

// Subscriber implements WSClient with gorilla/websocket. A dropped
// connection is redialed and every live subscription is re-established.
type Subscriber struct {
	endpoint string
	cfg      WSConfig
	logger   *log.Logger

	connMu  sync.Mutex // guards conn and serializes writes
	conn    *websocket.Conn
	nextID  atomic.Uint64
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[uint64]*pendingSub
	subs    map[int64]*subscription // keyed by server subscription id
}

type subscription struct {
	addr domain.Address
	ch   chan AccountNotification
}

// pendingSub is an accountSubscribe awaiting its reply. On success the
// reply handler installs sub under the new id and drops replaces.
type pendingSub struct {
	sub      *subscription
	replaces int64 // previous server id, 0 for a new subscription
	reply    chan error
}

// NewWSClient dials endpoint and starts the read and ping loops.
func NewWSClient(ctx context.Context, endpoint string, cfg WSConfig) (*Subscriber, error) {
	def := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Subscriber{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
		pending:  make(map[uint64]*pendingSub),
		subs:     make(map[int64]*subscription),
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	s.wg.Add(2)
	go s.run(conn)
	go s.pingLoop()
	return s, nil
}

// Compile-time interface check.
var _ WSClient = (*Subscriber)(nil)

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// SubscribeAccount subscribes to addr and returns its notification stream.
// The channel is closed by Close.
func (s *Subscriber) SubscribeAccount(ctx context.Context, addr domain.Address) (<-chan AccountNotification, error) {
	sub := &subscription{addr: addr, ch: make(chan AccountNotification, 1024)}
	if err := s.subscribe(ctx, sub, 0); err != nil {
		return nil, err
	}
	return sub.ch, nil
}

// Close stops the loops and closes every subscription channel. It is safe to call twice.
func (s *Subscriber) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	for id, p := range s.pending {
		p.reply <- ErrClientClosed
		delete(s.pending, id)
	}
	s.mu.Unlock()
	return nil
}

// run reads conn until it fails, then redials with backoff and resubscribes.
func (s *Subscriber) run(conn *websocket.Conn) {
	defer s.wg.Done()

	delay := s.cfg.ReconnectDelay
	for {
		s.readUntilError(conn)
		if s.closed.Load() {
			return
		}

		for {
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			next, err := s.dial(ctx)
			cancel()
			if err == nil {
				conn = next
				break
			}
			s.logger.Printf("Reconnect to %s failed: %v", s.endpoint, err)
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
		}

		s.connMu.Lock()
		if s.closed.Load() {
			s.connMu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.connMu.Unlock()
		delay = s.cfg.ReconnectDelay

		s.wg.Add(1)
		go s.resubscribeAll()
	}
}

func (s *Subscriber) readUntilError(conn *websocket.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Printf("Read from %s failed: %v", s.endpoint, err)
			}
			_ = conn.Close()
			return
		}
		s.dispatch(msg)
	}
}

// resubscribeAll moves every subscription to a fresh server id.
func (s *Subscriber) resubscribeAll() {
	defer s.wg.Done()

	s.mu.Lock()
	old := make(map[int64]*subscription, len(s.subs))
	for id, sub := range s.subs {
		old[id] = sub
	}
	s.mu.Unlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubscribeTimeout)
		err := s.subscribe(ctx, sub, oldID)
		cancel()
		if err != nil && !errors.Is(err, ErrClientClosed) {
			s.logger.Printf("Resubscribe %s failed: %v", sub.addr, err)
		}
	}
}

// subscribe sends accountSubscribe for sub and waits for the server's reply.
func (s *Subscriber) subscribe(ctx context.Context, sub *subscription, replaces int64) error {
	if s.closed.Load() {
		return ErrClientClosed
	}

	id := s.nextID.Add(1)
	p := &pendingSub{sub: sub, replaces: replaces, reply: make(chan error, 1)}
	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()
	forget := func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}

	req := request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountSubscribe",
		Params:  []any{sub.addr.String(), map[string]string{"encoding": "base64", "commitment": s.cfg.Commitment}},
	}
	if err := s.write(req); err != nil {
		forget()
		return err
	}

	timer := time.NewTimer(s.cfg.SubscribeTimeout)
	defer timer.Stop()
	select {
	case err := <-p.reply:
		return err
	case <-timer.C:
		forget()
		return fmt.Errorf("subscribe %s: no reply after %s", sub.addr, s.cfg.SubscribeTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-s.done:
		return ErrClientClosed
	}
}

func (s *Subscriber) write(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// wsMessage covers subscribe replies, error replies and notifications.
type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context rpcContext `json:"context"`
			Value   rpcAccount `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (s *Subscriber) dispatch(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Printf("Undecodable message: %v", err)
		return
	}

	switch {
	case msg.ID != nil:
		s.resolve(*msg.ID, &msg)
	case msg.Method == "accountNotification" && msg.Params != nil:
		s.notify(&msg)
	}
}

func (s *Subscriber) resolve(id uint64, msg *wsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)

	if msg.Error != nil {
		p.reply <- msg.Error
		return
	}
	var subID int64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		p.reply <- fmt.Errorf("decode subscription id: %w", err)
		return
	}
	if p.replaces != 0 {
		if _, live := s.subs[p.replaces]; !live {
			p.reply <- nil
			return
		}
		delete(s.subs, p.replaces)
	}
	s.subs[subID] = p.sub
	p.reply <- nil
}

func (s *Subscriber) notify(msg *wsMessage) {
	start := time.Now()
	defer func() { observability.RecordWSMessage(time.Since(start).Seconds()) }()

	s.mu.Lock()
	sub, ok := s.subs[msg.Params.Subscription]
	s.mu.Unlock()
	if !ok {
		return
	}

	value := msg.Params.Result.Value
	n := AccountNotification{
		Address:  sub.addr,
		Slot:     msg.Params.Result.Context.Slot,
		Lamports: value.Lamports,
	}
	if owner, err := domain.ParseAddress(value.Owner); err == nil {
		n.Owner = owner
	}
	if len(value.Data) > 0 {
		n.Data = value.Data[0]
	}

	// Blocks until delivered or closed.
	select {
	case sub.ch <- n:
	case <-s.done:
	}
}

func (s *Subscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			}
			s.connMu.Unlock()
		}
	}
}
