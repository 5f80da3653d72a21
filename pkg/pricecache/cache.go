// Package pricecache keeps a local copy of the prices pushed by the gateway
// over a single WebSocket connection.
//
// A Cache owns at most one live connection. When the connection drops or a
// dial fails it schedules exactly one reconnect after a fixed delay;
// Disconnect cancels that timer and discards the connection. Every
// connection attempt has a generation number, and anything that arrives for
// an older generation (a late frame, a slow dial, a stale timer) is ignored.
package pricecache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
	"github.com/shubham-shewale/price-broadcast/pkg/protocol"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultReconnectDelay = 5 * time.Second
	// DefaultReadTimeout is how long a connection may stay silent. The
	// gateway pings every 50s, so a healthy link never gets close to it.
	DefaultReadTimeout = 60 * time.Second

	pongWait = time.Second
)

type Options struct {
	URL            string
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	Dialer         Dialer
	Scheduler      Scheduler
	Logger         *zap.Logger
	// OnUpdate, if set, is called after each merged message, outside any lock.
	OnUpdate func(msgType string, snapshots []models.PriceSnapshot)
}

type Cache struct {
	url       string
	delay     time.Duration
	idle      time.Duration
	dialer    Dialer
	scheduler Scheduler
	logger    *zap.Logger
	onUpdate  func(string, []models.PriceSnapshot)

	mu       sync.RWMutex
	prices   map[string]models.PriceSnapshot
	state    State
	running  bool
	conn     Conn
	gen      uint64
	retry    Timer
	retrySeq uint64
	cancel   context.CancelFunc
	ctx      context.Context
}

// New builds a Cache in the closed state; call Connect to start it.
func New(opts Options) *Cache {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache{
		url:       opts.URL,
		delay:     opts.ReconnectDelay,
		idle:      opts.ReadTimeout,
		dialer:    opts.Dialer,
		scheduler: opts.Scheduler,
		logger:    opts.Logger.With(zap.String("url", opts.URL)),
		onUpdate:  opts.OnUpdate,
		prices:    make(map[string]models.PriceSnapshot),
		state:     StateClosed,
	}
}

// Connect starts connecting in the background. It is a no-op while the
// cache is already running.
func (c *Cache) Connect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	gen := c.beginAttemptLocked()
	ctx := c.ctx
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect and closes the live connection.
// No further connection attempt is made until Connect is called again.
func (c *Cache) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.gen++
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	c.logger.Info("Disconnected")
}

func (c *Cache) IsConnected() bool {
	return c.State() == StateOpen
}

func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetStockPrice returns the latest snapshot for symbol, if one was ever received.
func (c *Cache) GetStockPrice(symbol string) (models.PriceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.prices[symbol]
	return s, ok
}

// GetAllStockPrices returns every known snapshot ordered by symbol.
func (c *Cache) GetAllStockPrices() []models.PriceSnapshot {
	c.mu.RLock()
	out := make([]models.PriceSnapshot, 0, len(c.prices))
	for _, s := range c.prices {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *Cache) beginAttemptLocked() uint64 {
	c.gen++
	c.state = StateConnecting
	return c.gen
}

func (c *Cache) dial(ctx context.Context, gen uint64) {
	conn, err := c.dialer.DialContext(ctx, c.url)

	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateClosed
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.logger.Warn("Dial failed, retrying", zap.Error(err), zap.Duration("delay", c.delay))
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info("Connected")
	c.readLoop(conn, gen)
}

// readLoop treats a connection that stays silent for longer than the read
// timeout as dead. Server pings push the deadline out and get a pong back.
func (c *Cache) readLoop(conn Conn, gen uint64) {
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.idle))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pongWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		conn.SetReadDeadline(time.Now().Add(c.idle))
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

// handleMessage replaces the snapshot of every symbol in the message.
// Malformed frames are dropped and the connection stays up.
func (c *Cache) handleMessage(gen uint64, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("Dropping malformed message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	for _, s := range msg.Data {
		if s.Symbol == "" {
			continue
		}
		c.prices[s.Symbol] = s
	}
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(msg.Type, msg.Data)
	}
}

func (c *Cache) handleClose(conn Conn, gen uint64, err error) {
	conn.Close()

	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logger.Warn("Connection lost, retrying", zap.Error(err), zap.Duration("delay", c.delay))
}

// scheduleReconnectLocked replaces any pending timer, so at most one is ever
// outstanding.
func (c *Cache) scheduleReconnectLocked() {
	c.stopRetryLocked()
	seq := c.retrySeq
	c.retry = c.scheduler.AfterFunc(c.delay, func() { c.fireReconnect(seq) })
}

func (c *Cache) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.retrySeq++
}

func (c *Cache) fireReconnect(seq uint64) {
	c.mu.Lock()
	if !c.running || seq != c.retrySeq {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	gen := c.beginAttemptLocked()
	ctx := c.ctx
	c.mu.Unlock()

	go c.dial(ctx, gen)
}
