// Package realtime contiene el nucleo de chat en tiempo real: registro de sesiones,
// tabla de membresias, enrutado de mensajes y ciclo de vida de cada conexion websocket.
package realtime

import "context"

// Identity es el usuario autenticado que el gate adjunta a la peticion de upgrade.
type Identity struct {
	UserID   int64
	Username string
}

type identityKey struct{}

// WithIdentity devuelve un contexto que transporta la identidad admitida por el gate.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom recupera la identidad; ok es false si falta o no es valida.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID <= 0 {
		return Identity{}, false
	}
	return id, true
}
