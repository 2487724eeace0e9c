package realtime

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-server/internal/domain"
)

var ErrRateLimited = errors.New("rate limit exceeded, message discarded")

// RateLimiter limita los frames conversacionales por usuario.
type RateLimiter interface {
	Allow(key string) bool
}

// Options configura el transporte de cada conexion.
type Options struct {
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	Limiter        RateLimiter
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	return o
}

// Handler atiende GET /ws/chat una vez que el gate adjunto la identidad a la peticion.
type Handler struct {
	logger   *zap.Logger
	registry *Registry
	router   *Router
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(logger *zap.Logger, registry *Registry, router *Router, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	origins := newOriginPolicy(logger, opts.AllowedOrigins)
	return &Handler{
		logger:   logger,
		registry: registry,
		router:   router,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origins.check(r) {
					return true
				}
				logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
				return false
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.rejectUnauthenticated(ws)
		return
	}

	conn := newWSConn(uuid.NewString(), ws, h.logger, h.opts)
	session := h.registry.Register(conn, identity.UserID, identity.Username)
	logger := conn.logger.With(zap.Int64("user_id", identity.UserID), zap.String("username", identity.Username))
	logger.Info("websocket connected", zap.Int("online", h.registry.Count()))

	go conn.writePump()
	if frame, err := EncodeFrame(domain.NewSystemMessage(domain.MessageTypeConnect, "connected")); err == nil {
		conn.Send(frame)
	}

	h.readLoop(r.Context(), logger, ws, conn, session)

	h.registry.Deregister(conn.ID())
	conn.Close()
	<-conn.writerDone
	logger.Info("websocket disconnected", zap.Int("online", h.registry.Count()))
}

// readLoop procesa frames en orden hasta que el transporte se cierra o falla.
func (h *Handler) readLoop(ctx context.Context, logger *zap.Logger, ws *websocket.Conn, conn *wsConn, session Session) {
	ws.SetReadLimit(h.opts.MaxMessageSize)
	h.extendReadDeadline(logger, ws)
	ws.SetPongHandler(func(string) error {
		h.extendReadDeadline(logger, ws)
		return nil
	})

	limiterKey := strconv.FormatInt(session.UserID, 10)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			logReadError(logger, err, h.opts.MaxMessageSize)
			return
		}
		h.extendReadDeadline(logger, ws)
		h.registry.Touch(session.UserID)

		msg, err := DecodeFrame(raw)
		if err != nil {
			logger.Warn("invalid inbound frame", zap.Error(err))
			conn.Send(errorFrame(err))
			continue
		}

		if msg.Type != domain.MessageTypeHeartbeat && h.opts.Limiter != nil && !h.opts.Limiter.Allow(limiterKey) {
			logger.Warn("rate limit exceeded, discarding frame", zap.String("type", string(msg.Type)))
			conn.Send(errorFrame(ErrRateLimited))
			continue
		}

		if err := h.router.Route(ctx, session, msg); err != nil {
			logger.Info("frame rejected", zap.String("type", string(msg.Type)), zap.Error(err))
			conn.Send(errorFrame(err))
		}
	}
}

func (h *Handler) extendReadDeadline(logger *zap.Logger, ws *websocket.Conn) {
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		logger.Debug("set read deadline failed", zap.Error(err))
	}
}

// rejectUnauthenticated cierra una conexion que llego sin identidad.
func (h *Handler) rejectUnauthenticated(ws *websocket.Conn) {
	h.logger.Warn("websocket opened without identity, closing", zap.String("remote_addr", ws.RemoteAddr().String()))
	deadline := time.Now().Add(h.opts.WriteWait)
	if frame, err := EncodeFrame(domain.NewSystemMessage(domain.MessageTypeSystem, "authentication required")); err == nil {
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"), deadline)
	_ = ws.Close()
}
