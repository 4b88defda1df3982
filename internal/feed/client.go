package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/pkg/types"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	reconnectDelay   = 5 * time.Second
	priceHistoryCap  = 500
)

// message is the envelope the indicator feed publishes per instrument
type message struct {
	Type       string  `json:"type"` // "indicators" or "price"
	Instrument string  `json:"instrument"`
	Volatility float64 `json:"volatility_ratio"`
	Trend      float64 `json:"trend_strength"`
	Alignment  float64 `json:"ma_alignment"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"` // unix milliseconds
}

// Client maintains a reconnecting websocket subscription to the market data
// feed. It caches the latest indicator snapshot per instrument and keeps a
// rolling price window for return-series requests. All reads are served from
// the in-memory cache: a dropped connection degrades data freshness, never
// the decision path.
type Client struct {
	url         string
	instruments []string
	log         *logger.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	snapshots map[string]types.IndicatorSnapshot
	prices    map[string][]float64

	onConnChange func(bool)
	onData       func()

	reconnectChan  chan struct{}
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewClient creates a feed client for the given instruments
func NewClient(url string, instruments []string, log *logger.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:           url,
		instruments:   instruments,
		log:           log,
		snapshots:      make(map[string]types.IndicatorSnapshot),
		prices:         make(map[string][]float64),
		reconnectChan:  make(chan struct{}, 1),
		reconnectDelay: reconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetConnectionHandler registers a callback fired on connect/disconnect
func (c *Client) SetConnectionHandler(fn func(connected bool)) {
	c.onConnChange = fn
}

// SetDataHandler registers a callback fired on each accepted feed message
func (c *Client) SetDataHandler(fn func()) {
	c.onData = fn
}

// Connect dials the feed and starts the read and reconnect loops
func (c *Client) Connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return errors.NewDataUnavailable("feed", "connect", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.notifyConn(true)

	if err := c.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)
	go c.reconnectLoop()

	return nil
}

// Close stops all loops and drops the connection
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": c.instruments,
		"id":     1,
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCategoryInternal, "feed", "subscribe")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.NewDataUnavailable("feed", "subscribe", err)
	}
	if c.log != nil {
		c.log.Info("Subscribed to %d instrument stream(s)", len(c.instruments))
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if c.log != nil {
					c.log.Warning("Feed read error: %v", err)
				}
				c.markDisconnected()
				c.triggerReconnect()
				return
			}
			c.handleMessage(raw)
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		if c.log != nil {
			c.log.Warning("Feed message dropped: %v", err)
		}
		return
	}

	ts := time.UnixMilli(msg.Timestamp)

	c.mu.Lock()
	switch msg.Type {
	case "indicators":
		c.snapshots[msg.Instrument] = types.IndicatorSnapshot{
			Instrument:      msg.Instrument,
			VolatilityRatio: msg.Volatility,
			TrendStrength:   msg.Trend,
			MAAlignment:     msg.Alignment,
			Timestamp:       ts,
		}
	case "price":
		series := append(c.prices[msg.Instrument], msg.Price)
		if len(series) > priceHistoryCap {
			series = series[len(series)-priceHistoryCap:]
		}
		c.prices[msg.Instrument] = series
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if c.onData != nil {
		c.onData()
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
			time.Sleep(c.reconnectDelay)
			if c.log != nil {
				c.log.Info("Reconnecting to feed at %s", c.url)
			}
			if err := c.Connect(); err != nil {
				if c.log != nil {
					c.log.Warning("Feed reconnect failed: %v", err)
				}
				c.triggerReconnect()
				continue
			}
			// a successful Connect started fresh loops; this one is done
			return
		}
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.notifyConn(false)
}

func (c *Client) notifyConn(connected bool) {
	if c.onConnChange != nil {
		c.onConnChange(connected)
	}
}

// Connected reports whether the feed connection is up
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Latest returns the most recent indicator snapshot for an instrument.
// The zero snapshot means no data has arrived yet.
func (c *Client) Latest(instrument string) types.IndicatorSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[instrument]
}

// Returns computes simple returns over the most recent lookback+1 cached
// prices per instrument. Instruments without enough history are omitted;
// an empty result is an error so the correlation refresher keeps its
// stale entries.
func (c *Client) Returns(ctx context.Context, instruments []string, lookback int) (map[string][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]float64, len(instruments))
	for _, inst := range instruments {
		series := c.prices[inst]
		if len(series) < lookback+1 {
			continue
		}
		window := series[len(series)-(lookback+1):]
		returns := make([]float64, lookback)
		for i := 1; i < len(window); i++ {
			if window[i-1] == 0 {
				returns[i-1] = 0
				continue
			}
			returns[i-1] = (window[i] - window[i-1]) / window[i-1]
		}
		out[inst] = returns
	}

	if len(out) == 0 {
		return nil, errors.NewDataUnavailable("feed", "returns",
			fmt.Errorf("no instrument with %d cached prices", lookback+1))
	}
	return out, nil
}
