package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/domain"
	"github.com/vibemeet/vibemeet/internal/extern"
)

var ErrBackpressure = errors.New("backpressure")

// Options bound the transport: message size, keepalive cadence and the
// per-connection event quota. Completer and Extractor are optional; without a
// Completer, questions addressed to the assistant are stored and relayed like
// any other message.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	RateEvents int
	RateWindow time.Duration

	Completer     extern.Completer
	Extractor     extern.Extractor
	AIMaxTokens   int
	AITemperature float64
}

func (o *Options) defaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.RateEvents <= 0 {
		o.RateEvents = 100
	}
	if o.RateWindow <= 0 {
		o.RateWindow = 15 * time.Minute
	}
}

// Controller owns the websocket side of the session protocol: upgrades,
// pumps, event dispatch and room fan-out.
type Controller struct {
	proto    *app.Protocol
	opts     Options
	limiter  *EventLimiter
	validate *validator.Validate
}

func NewController(proto *app.Protocol, opts Options) *Controller {
	opts.defaults()
	return &Controller{
		proto:    proto,
		opts:     opts,
		limiter:  NewEventLimiter(opts.RateEvents, opts.RateWindow),
		validate: validator.New(),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan app.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f app.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and binds a fresh connection id. The client
// token only scopes cookies; the connection id is what presence is keyed by.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cid := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("token", c.GetString("client_token")).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan app.Frame, 64),
	}
	ctx, cancel := context.WithCancel(ctx)
	ctl.proto.Registry().Bind(cid, conn, cancel)

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cid, conn)
}
