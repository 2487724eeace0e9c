package realtime

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"chat-server/internal/domain"
)

// Conn es el extremo de transporte de una sesion. Send nunca bloquea: devuelve
// false si el frame no pudo encolarse.
type Conn interface {
	ID() string
	Send(frame []byte) bool
	Close()
}

// Session es una conexion autenticada.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Conn         Conn      `json:"-"`
}

type entry struct {
	conn        Conn
	userID      int64
	username    string
	connectedAt time.Time
	lastActive  atomic.Int64
}

func (e *entry) session() Session {
	return Session{
		ConnectionID: e.conn.ID(),
		UserID:       e.userID,
		Username:     e.username,
		ConnectedAt:  e.connectedAt,
		LastActiveAt: time.Unix(0, e.lastActive.Load()).UTC(),
		Conn:         e.conn,
	}
}

// Registry indexa sesiones por conexion y por usuario. Un usuario tiene a lo sumo
// una sesion alcanzable via Lookup.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*entry
	byUser map[int64]*entry
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*entry),
		byUser: make(map[int64]*entry),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register inserta la sesion en ambos indices. Si el usuario ya tenia una sesion,
// el mapeo se reemplaza sin cerrar la conexion anterior.
func (r *Registry) Register(c Conn, userID int64, username string) Session {
	now := r.now()
	e := &entry{
		conn:        c,
		userID:      userID,
		username:    username,
		connectedAt: now,
	}
	e.lastActive.Store(now.UnixNano())

	r.mu.Lock()
	if old, ok := r.byConn[c.ID()]; ok && r.byUser[old.userID] == old {
		delete(r.byUser, old.userID)
	}
	r.byConn[c.ID()] = e
	r.byUser[userID] = e
	r.mu.Unlock()

	return e.session()
}

// Deregister quita la conexion. Es idempotente; devuelve false si ya no existia.
func (r *Registry) Deregister(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[connectionID]
	if !ok {
		return false
	}
	delete(r.byConn, connectionID)
	if r.byUser[e.userID] == e {
		delete(r.byUser, e.userID)
	}
	return true
}

func (r *Registry) Lookup(userID int64) (Session, bool) {
	r.mu.RLock()
	e, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return e.session(), true
}

// Touch actualiza lastActiveAt de la sesion vigente del usuario.
func (r *Registry) Touch(userID int64) {
	r.mu.RLock()
	e, ok := r.byUser[userID]
	r.mu.RUnlock()
	if ok {
		e.lastActive.Store(r.now().UnixNano())
	}
}

// Count devuelve la cantidad de usuarios en linea.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// All devuelve una copia de las sesiones vigentes ordenada por userID.
func (r *Registry) All() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.byUser))
	for _, e := range r.byUser {
		out = append(out, e.session())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return out
}

// Evict desconecta al usuario enviandole un frame system con el motivo.
func (r *Registry) Evict(userID int64, reason string) bool {
	r.mu.Lock()
	e, ok := r.byUser[userID]
	if ok {
		delete(r.byUser, userID)
		delete(r.byConn, e.conn.ID())
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	closeWithNotice(e.conn, reason)
	return true
}

// EvictIdle desconecta las sesiones cuya ultima actividad supera maxIdle.
func (r *Registry) EvictIdle(maxIdle time.Duration) []Session {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-maxIdle).UnixNano()

	r.mu.Lock()
	var stale []*entry
	for connID, e := range r.byConn {
		if e.lastActive.Load() < cutoff {
			stale = append(stale, e)
			delete(r.byConn, connID)
			if r.byUser[e.userID] == e {
				delete(r.byUser, e.userID)
			}
		}
	}
	r.mu.Unlock()

	out := make([]Session, 0, len(stale))
	for _, e := range stale {
		out = append(out, e.session())
		closeWithNotice(e.conn, "idle timeout")
	}
	return out
}

// CloseAll cierra todas las conexiones, incluidas las reemplazadas por un re-login.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.byConn))
	for _, e := range r.byConn {
		entries = append(entries, e)
	}
	r.byConn = make(map[string]*entry)
	r.byUser = make(map[int64]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		closeWithNotice(e.conn, reason)
	}
	return len(entries)
}

func closeWithNotice(c Conn, reason string) {
	if reason != "" {
		if frame, err := EncodeFrame(domain.NewSystemMessage(domain.MessageTypeSystem, reason)); err == nil {
			c.Send(frame)
		}
	}
	c.Close()
}
