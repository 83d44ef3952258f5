package ws

import (
	"errors"
	"net"
	"net/http"
	"time"

	"BlockPulse/internal/hub"
	"BlockPulse/internal/service/ratelimit"
	xhttp "BlockPulse/pkg/http"
	applogger "BlockPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Config holds keepalive and admission settings for subscriber connections.
type Config struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func DefaultConfig() Config {
	return Config{
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		ReadLimit:  512,
	}
}

// Handler upgrades GET /ws to a websocket and registers the connection with
// the hub. Subscribers only receive; anything they send is discarded.
type Handler struct {
	hub      *hub.Hub
	limiter  *ratelimit.Limiter
	cfg      Config
	upgrader websocket.Upgrader
	logger   *applogger.Logger
}

func NewHandler(h *hub.Hub, limiter *ratelimit.Limiter, cfg Config, logger *applogger.Logger) *Handler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Handler{
		hub:     h,
		limiter: limiter,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   512,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger.With(applogger.String("component", "ws")),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve blocks for the lifetime of the connection and acts as its reader.
func (h *Handler) Serve(c echo.Context) error {
	ip := c.RealIP()
	if h.limiter != nil && !h.limiter.Allow(ip) {
		h.logger.Debug("subscriber rejected", applogger.String("ip", ip))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many connection attempts"))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Debug("upgrade failed", applogger.String("ip", ip), applogger.Error(err))
		return nil
	}

	t := &transport{conn: conn, writeWait: h.cfg.WriteWait}
	sub, err := h.hub.Accept(t)
	if err != nil {
		return nil
	}
	log := h.logger.With(applogger.Uint64("subscriber", sub.ID()), applogger.String("ip", ip))
	log.Debug("subscriber connected")

	go h.keepalive(sub, t, log)
	h.readLoop(conn, log)

	h.hub.Disconnect(sub.ID())
	return nil
}

func (h *Handler) readLoop(conn *websocket.Conn, log *applogger.Logger) {
	conn.SetReadLimit(h.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				log.Debug("subscriber missed pong")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				log.Debug("subscriber closed connection")
			default:
				log.Debug("subscriber read ended", applogger.Error(err))
			}
			return
		}
	}
}

func (h *Handler) keepalive(sub *hub.Subscriber, t *transport, log *applogger.Logger) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := t.ping(); err != nil {
				log.Debug("ping failed", applogger.Error(err))
				h.hub.Disconnect(sub.ID())
				return
			}
		}
	}
}
