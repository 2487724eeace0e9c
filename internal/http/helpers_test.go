package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"chat-server/internal/domain"
	"chat-server/internal/realtime"
	"chat-server/internal/service"
)

type mockUserRepo struct {
	nextID     int64
	byUsername map[string]domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byUsername: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.nextID++
	user.ID = m.nextID
	m.byUsername[user.Username] = user
	return user, nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	for _, u := range m.byUsername {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	u, ok := m.byUsername[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

type mockMessageRepo struct {
	mu       sync.Mutex
	created  []domain.ChatMessage
	history  []domain.ChatMessage
	stored   map[string]domain.ChatMessage
}

func (m *mockMessageRepo) Create(_ context.Context, message domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, message)
	return nil
}

func (m *mockMessageRepo) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *mockMessageRepo) ListPrivate(_ context.Context, _, _ int64, _ int) ([]domain.ChatMessage, error) {
	return m.history, nil
}

func (m *mockMessageRepo) ListGroup(_ context.Context, _ int64, _ int) ([]domain.ChatMessage, error) {
	return m.history, nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, messageID string) (domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.stored[messageID]
	if !ok {
		return domain.ChatMessage{}, pgx.ErrNoRows
	}
	return msg, nil
}

func (m *mockMessageRepo) UpdateStatus(_ context.Context, messageID string, status domain.MessageStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.stored[messageID]
	if !ok || !slices.Contains(status.Predecessors(), msg.Status) {
		return false, nil
	}
	msg.Status = status
	m.stored[messageID] = msg
	return true, nil
}

func (m *mockMessageRepo) status(messageID string) domain.MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[messageID].Status
}

type mockGroupRepo struct {
	nextID int64
	groups map[int64]domain.ChatGroup
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[int64]domain.ChatGroup)}
}

func (m *mockGroupRepo) Create(_ context.Context, group domain.ChatGroup) (domain.ChatGroup, error) {
	m.nextID++
	group.ID = m.nextID
	group.MemberCount = len(group.MemberIDs)
	m.groups[group.ID] = group
	return group, nil
}

func (m *mockGroupRepo) GetByID(_ context.Context, id int64) (domain.ChatGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return domain.ChatGroup{}, pgx.ErrNoRows
	}
	return g, nil
}

func (m *mockGroupRepo) ListByMember(_ context.Context, userID int64) ([]domain.ChatGroup, error) {
	out := []domain.ChatGroup{}
	for _, g := range m.groups {
		for _, id := range g.MemberIDs {
			if id == userID {
				out = append(out, g)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockGroupRepo) ListMemberships(_ context.Context) ([]domain.GroupMembership, error) {
	out := make([]domain.GroupMembership, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, domain.GroupMembership{GroupID: g.ID, MemberIDs: g.MemberIDs})
	}
	return out, nil
}

func (m *mockGroupRepo) AddMember(_ context.Context, groupID, userID int64) error {
	g, ok := m.groups[groupID]
	if !ok {
		return pgx.ErrNoRows
	}
	g.MemberIDs = append(g.MemberIDs, userID)
	m.groups[groupID] = g
	return nil
}

func (m *mockGroupRepo) RemoveMember(_ context.Context, groupID, userID int64) error {
	g, ok := m.groups[groupID]
	if !ok {
		return pgx.ErrNoRows
	}
	kept := g.MemberIDs[:0]
	for _, id := range g.MemberIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	g.MemberIDs = kept
	m.groups[groupID] = g
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, groupID int64) error {
	if _, ok := m.groups[groupID]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.groups, groupID)
	return nil
}

const testAdminID int64 = 1

// testServer monta el router completo sobre mocks en memoria.
type testServer struct {
	engine   *gin.Engine
	jwt      *service.JWTService
	registry *realtime.Registry
	groups   *realtime.Groups
	messages *mockMessageRepo
	groupDB  *mockGroupRepo
	users    *mockUserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	ts := &testServer{
		jwt:      service.NewJWTServiceWithStore("secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore()),
		registry: realtime.NewRegistry(),
		groups:   realtime.NewGroups(),
		messages: &mockMessageRepo{stored: map[string]domain.ChatMessage{}},
		groupDB:  newMockGroupRepo(),
		users:    newMockUserRepo(),
	}
	chatServ := service.NewChatService(logger, ts.messages, ts.groupDB, ts.groups, 20, 100)
	userServ := service.NewUserService(logger, ts.users)
	router := realtime.NewRouter(logger, ts.registry, ts.groups, chatServ)

	ts.engine = NewRouter(logger, ts.jwt, Handlers{
		Auth:      NewAuthHandler(logger, userServ, ts.jwt),
		Chat:      NewChatHandler(logger, chatServ, ts.groups),
		Groups:    NewGroupHandler(logger, chatServ),
		Presence:  NewPresenceHandler(logger, ts.registry, []int64{testAdminID}),
		Health:    NewHealthHandler(logger, nil),
		WebSocket: realtime.NewHandler(logger, ts.registry, router, realtime.Options{}),
	})
	return ts
}

func (ts *testServer) token(t *testing.T, id int64, username string) string {
	t.Helper()
	pair, err := ts.jwt.GeneratePair(domain.User{ID: id, Username: username})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	return pair.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

type noopConn struct{ id string }

func (c noopConn) ID() string { return c.id }

func (c noopConn) Send([]byte) bool { return true }

func (c noopConn) Close() {}
