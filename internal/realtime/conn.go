package realtime

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn adapta un *websocket.Conn a Conn con un outbox propio. Solo writePump
// escribe en el socket.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	logger *zap.Logger

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}

	writeWait    time.Duration
	pingInterval time.Duration
}

func newWSConn(id string, ws *websocket.Conn, logger *zap.Logger, opts Options) *wsConn {
	return &wsConn{
		id:           id,
		ws:           ws,
		logger:       logger.With(zap.String("connection_id", id)),
		send:         make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		writeWait:    opts.WriteWait,
		pingInterval: opts.PingInterval,
	}
}

func (c *wsConn) ID() string { return c.id }

// Send encola el frame; con el outbox lleno o la conexion cerrada lo descarta.
func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close pide al writePump que vacie el outbox, envie el close frame y cierre el socket.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.closeSocket()
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		case <-ticker.C:
			if !c.writeControl(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			c.drain()
			c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsConn) drain() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) writeFrame(frame []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.logger.Warn("set write deadline failed", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write frame failed", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *wsConn) writeControl(messageType int, data []byte) bool {
	if err := c.ws.WriteControl(messageType, data, time.Now().Add(c.writeWait)); err != nil {
		if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Warn("write control frame failed", zap.Int("message_type", messageType), zap.Error(err))
		}
		return false
	}
	return true
}

func (c *wsConn) closeSocket() {
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("close websocket failed", zap.Error(err))
	}
}

// logReadError clasifica el motivo por el que termino el loop de lectura.
func logReadError(logger *zap.Logger, err error, maxMessageSize int64) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn("inbound frame exceeded maximum size", zap.Int64("max_bytes", maxMessageSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Info("client closed connection", zap.Error(err))
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		logger.Info("connection closed", zap.Error(err))
	case isTimeout(err):
		logger.Info("connection timed out waiting for pong", zap.Error(err))
	default:
		logger.Warn("websocket read error", zap.Error(err))
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err, websocket.CloseAbnormalClosure) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// originPolicy decide que origenes de navegador pueden abrir un websocket.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(logger *zap.Logger, origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	if len(p.allowed) == 0 {
		p.allowAll = true
	}
	return p
}

// check admite peticiones sin Origin (clientes que no son navegadores).
func (p originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, exists := p.allowed[normalized]
	return exists
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
