package realtime

import (
	"slices"
	"sync"
)

// Groups es la tabla en memoria groupID -> miembros. La membresia no depende de
// que el usuario este en linea.
type Groups struct {
	mu      sync.RWMutex
	members map[int64]map[int64]struct{}
}

func NewGroups() *Groups {
	return &Groups{members: make(map[int64]map[int64]struct{})}
}

// Set reemplaza el conjunto completo de miembros del grupo.
func (g *Groups) Set(groupID int64, memberIDs []int64) {
	set := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	g.mu.Lock()
	g.members[groupID] = set
	g.mu.Unlock()
}

func (g *Groups) Add(groupID, userID int64) {
	if userID <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[groupID]
	if !ok {
		set = make(map[int64]struct{})
		g.members[groupID] = set
	}
	set[userID] = struct{}{}
}

func (g *Groups) Remove(groupID, userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.members[groupID]; ok {
		delete(set, userID)
	}
}

// Dismiss elimina el grupo; no habra mas intentos de enrutado hacia el.
func (g *Groups) Dismiss(groupID int64) {
	g.mu.Lock()
	delete(g.members, groupID)
	g.mu.Unlock()
}

// Members devuelve una copia ordenada de los miembros.
func (g *Groups) Members(groupID int64) []int64 {
	g.mu.RLock()
	set := g.members[groupID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	g.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (g *Groups) IsMember(groupID, userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[groupID][userID]
	return ok
}

// Len devuelve la cantidad de grupos conocidos.
func (g *Groups) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}
