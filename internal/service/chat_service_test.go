package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"chat-server/internal/domain"
)

type mockChatMessageRepo struct {
	created     []domain.ChatMessage
	createErr   error
	listData    []domain.ChatMessage
	lastLimit   int
	stored      map[string]domain.ChatMessage
	lastPrivate [2]int64
}

func (m *mockChatMessageRepo) Create(_ context.Context, message domain.ChatMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, message)
	return nil
}

func (m *mockChatMessageRepo) ListPrivate(_ context.Context, userID, friendID int64, limit int) ([]domain.ChatMessage, error) {
	m.lastPrivate = [2]int64{userID, friendID}
	m.lastLimit = limit
	return m.listData, nil
}

func (m *mockChatMessageRepo) ListGroup(_ context.Context, _ int64, limit int) ([]domain.ChatMessage, error) {
	m.lastLimit = limit
	return m.listData, nil
}

func (m *mockChatMessageRepo) GetByID(_ context.Context, messageID string) (domain.ChatMessage, error) {
	msg, ok := m.stored[messageID]
	if !ok {
		return domain.ChatMessage{}, pgx.ErrNoRows
	}
	return msg, nil
}

func (m *mockChatMessageRepo) UpdateStatus(_ context.Context, messageID string, status domain.MessageStatus) (bool, error) {
	msg, ok := m.stored[messageID]
	if !ok || !slices.Contains(status.Predecessors(), msg.Status) {
		return false, nil
	}
	msg.Status = status
	m.stored[messageID] = msg
	return true, nil
}

type mockGroupRepo struct {
	nextID  int64
	groups  map[int64]domain.ChatGroup
	removed []int64
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{nextID: 100, groups: make(map[int64]domain.ChatGroup)}
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
	var out []domain.ChatGroup
	for _, g := range m.groups {
		for _, id := range g.MemberIDs {
			if id == userID {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (m *mockGroupRepo) ListMemberships(_ context.Context) ([]domain.GroupMembership, error) {
	var out []domain.GroupMembership
	for id, g := range m.groups {
		out = append(out, domain.GroupMembership{GroupID: id, MemberIDs: g.MemberIDs})
	}
	return out, nil
}

func (m *mockGroupRepo) AddMember(_ context.Context, groupID, userID int64) error {
	g := m.groups[groupID]
	g.MemberIDs = append(g.MemberIDs, userID)
	m.groups[groupID] = g
	return nil
}

func (m *mockGroupRepo) RemoveMember(_ context.Context, groupID, userID int64) error {
	g := m.groups[groupID]
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
	m.removed = append(m.removed, groupID)
	return nil
}

type recordingMembership struct {
	sets      map[int64][]int64
	added     [][2]int64
	removed   [][2]int64
	dismissed []int64
}

func newRecordingMembership() *recordingMembership {
	return &recordingMembership{sets: make(map[int64][]int64)}
}

func (r *recordingMembership) Set(groupID int64, memberIDs []int64) {
	r.sets[groupID] = memberIDs
}

func (r *recordingMembership) Add(groupID, userID int64) {
	r.added = append(r.added, [2]int64{groupID, userID})
}

func (r *recordingMembership) Remove(groupID, userID int64) {
	r.removed = append(r.removed, [2]int64{groupID, userID})
}

func (r *recordingMembership) Dismiss(groupID int64) {
	r.dismissed = append(r.dismissed, groupID)
}

func TestChatService_SavePrivateStampsMessage(t *testing.T) {
	repo := &mockChatMessageRepo{}
	svc := NewChatService(nil, repo, nil, nil, 20, 100)

	saved, err := svc.SavePrivate(context.Background(), domain.ChatMessage{
		SenderID:   42,
		SenderName: "alice",
		ReceiverID: domain.Int64Ptr(7),
		Content:    "hi",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(saved.MessageID, "private_") {
		t.Fatalf("expected private_ prefix, got %q", saved.MessageID)
	}
	if saved.Type != domain.MessageTypePrivateChat || saved.Status != domain.MessageStatusSent {
		t.Fatalf("unexpected type/status: %s/%s", saved.Type, saved.Status)
	}
	if saved.Timestamp.IsZero() {
		t.Fatalf("expected timestamp default")
	}
	if len(repo.created) != 1 || repo.created[0].MessageID != saved.MessageID {
		t.Fatalf("expected exactly one persisted row, got %+v", repo.created)
	}
}

func TestChatService_SaveGroupClearsReceiver(t *testing.T) {
	repo := &mockChatMessageRepo{}
	svc := NewChatService(nil, repo, nil, nil, 20, 100)

	saved, err := svc.SaveGroup(context.Background(), domain.ChatMessage{
		SenderID: 42,
		GroupID:  domain.Int64Ptr(9),
		Content:  "hello group",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(saved.MessageID, "group_") || saved.Type != domain.MessageTypeGroupChat {
		t.Fatalf("unexpected group message: %+v", saved)
	}
	if saved.ReceiverID != nil {
		t.Fatalf("expected receiver cleared")
	}
}

func TestChatService_SaveValidation(t *testing.T) {
	svc := NewChatService(nil, &mockChatMessageRepo{}, nil, nil, 20, 100)

	cases := []domain.ChatMessage{
		{ReceiverID: domain.Int64Ptr(7), Content: "hi"},
		{SenderID: 42, Content: "hi"},
		{SenderID: 42, ReceiverID: domain.Int64Ptr(7), Content: "   "},
	}
	for i, c := range cases {
		if _, err := svc.SavePrivate(context.Background(), c); !errors.Is(err, ErrChatInvalidInput) {
			t.Fatalf("case %d expected ErrChatInvalidInput, got %v", i, err)
		}
	}
	if _, err := svc.SaveGroup(context.Background(), domain.ChatMessage{SenderID: 42, Content: "x"}); !errors.Is(err, domain.ErrMissingGroup) {
		t.Fatalf("expected wrapped ErrMissingGroup, got %v", err)
	}
}

func TestChatService_SaveReturnsStampedMessageOnStoreFailure(t *testing.T) {
	repo := &mockChatMessageRepo{createErr: errors.New("db down")}
	svc := NewChatService(nil, repo, nil, nil, 20, 100)

	saved, err := svc.SavePrivate(context.Background(), domain.ChatMessage{
		SenderID:   42,
		ReceiverID: domain.Int64Ptr(7),
		Content:    "hi",
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if saved.MessageID == "" || saved.Timestamp.IsZero() {
		t.Fatalf("expected stamped message even on failure, got %+v", saved)
	}
}

func TestChatService_HistoryIsChronologicalAndClamped(t *testing.T) {
	t0 := time.Now().UTC()
	repo := &mockChatMessageRepo{listData: []domain.ChatMessage{
		{MessageID: "m3", Timestamp: t0.Add(2 * time.Second)},
		{MessageID: "m2", Timestamp: t0.Add(time.Second)},
		{MessageID: "m1", Timestamp: t0},
	}}
	svc := NewChatService(nil, repo, nil, nil, 20, 50)

	out, err := svc.PrivateHistory(context.Background(), 42, 7, 500)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if repo.lastLimit != 50 {
		t.Fatalf("expected limit clamped to 50, got %d", repo.lastLimit)
	}
	if out[0].MessageID != "m1" || out[2].MessageID != "m3" {
		t.Fatalf("expected chronological order, got %s..%s", out[0].MessageID, out[2].MessageID)
	}

	repo.listData = nil
	out, err = svc.GroupHistory(context.Background(), 9, 0)
	if err != nil {
		t.Fatalf("group history: %v", err)
	}
	if repo.lastLimit != 20 {
		t.Fatalf("expected default limit 20, got %d", repo.lastLimit)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %+v", out)
	}
}

func TestChatService_MarkStatus(t *testing.T) {
	repo := &mockChatMessageRepo{stored: map[string]domain.ChatMessage{
		"private_1": {MessageID: "private_1", Type: domain.MessageTypePrivateChat, SenderID: 42, ReceiverID: domain.Int64Ptr(7), Status: domain.MessageStatusSent},
	}}
	svc := NewChatService(nil, repo, nil, nil, 20, 100)
	ctx := context.Background()

	got, err := svc.MarkStatus(ctx, 7, "private_1", domain.MessageStatusRead)
	if err != nil || got != domain.MessageStatusRead {
		t.Fatalf("mark read: status=%s err=%v", got, err)
	}
	if repo.stored["private_1"].Status != domain.MessageStatusRead {
		t.Fatalf("expected status read, got %s", repo.stored["private_1"].Status)
	}

	got, err = svc.MarkStatus(ctx, 7, "private_1", domain.MessageStatusDelivered)
	if err != nil || got != domain.MessageStatusRead {
		t.Fatalf("expected delivered after read to keep read, got status=%s err=%v", got, err)
	}
	if repo.stored["private_1"].Status != domain.MessageStatusRead {
		t.Fatalf("status moved backwards to %s", repo.stored["private_1"].Status)
	}

	if _, err := svc.MarkStatus(ctx, 7, "missing", domain.MessageStatusRead); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if _, err := svc.MarkStatus(ctx, 7, "private_1", domain.MessageStatusFailed); !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected ErrChatInvalidInput for non client status, got %v", err)
	}
}

func TestChatService_MarkStatusRequiresRecipient(t *testing.T) {
	groups := newMockGroupRepo()
	groups.groups[5] = domain.ChatGroup{ID: 5, OwnerID: 42, MemberIDs: []int64{7, 42}}
	repo := &mockChatMessageRepo{stored: map[string]domain.ChatMessage{
		"private_1": {MessageID: "private_1", Type: domain.MessageTypePrivateChat, SenderID: 42, ReceiverID: domain.Int64Ptr(7), Status: domain.MessageStatusSent},
		"group_1":   {MessageID: "group_1", Type: domain.MessageTypeGroupChat, SenderID: 42, GroupID: domain.Int64Ptr(5), Status: domain.MessageStatusSent},
	}}
	svc := NewChatService(nil, repo, groups, nil, 20, 100)
	ctx := context.Background()

	cases := []struct {
		name      string
		actorID   int64
		messageID string
	}{
		{name: "third party on private", actorID: 99, messageID: "private_1"},
		{name: "sender on private", actorID: 42, messageID: "private_1"},
		{name: "non member on group", actorID: 99, messageID: "group_1"},
		{name: "sender on group", actorID: 42, messageID: "group_1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.MarkStatus(ctx, tc.actorID, tc.messageID, domain.MessageStatusRead); !errors.Is(err, ErrMessageForbidden) {
				t.Fatalf("expected ErrMessageForbidden, got %v", err)
			}
			if repo.stored[tc.messageID].Status != domain.MessageStatusSent {
				t.Fatalf("status changed to %s", repo.stored[tc.messageID].Status)
			}
		})
	}

	if _, err := svc.MarkStatus(ctx, 7, "group_1", domain.MessageStatusDelivered); err != nil {
		t.Fatalf("member mark delivered: %v", err)
	}
	if repo.stored["group_1"].Status != domain.MessageStatusDelivered {
		t.Fatalf("expected group message delivered, got %s", repo.stored["group_1"].Status)
	}
}

func TestChatService_GroupLifecycleSyncsMembership(t *testing.T) {
	groups := newMockGroupRepo()
	cache := newRecordingMembership()
	svc := NewChatService(nil, &mockChatMessageRepo{}, groups, cache, 20, 100)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, CreateGroupInput{OwnerID: 1, Name: " poets ", MemberIDs: []int64{3, 2, 3, 1, -5}})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.Name != "poets" {
		t.Fatalf("expected trimmed name, got %q", group.Name)
	}
	if got := cache.sets[group.ID]; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected deduplicated members with owner, got %+v", got)
	}

	if err := svc.AddMember(ctx, 2, group.ID, 4); !errors.Is(err, ErrGroupForbidden) {
		t.Fatalf("expected non-owner add to be forbidden, got %v", err)
	}
	if err := svc.AddMember(ctx, 1, group.ID, 4); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := svc.RemoveMember(ctx, 3, group.ID, 3); err != nil {
		t.Fatalf("member leaving: %v", err)
	}
	if err := svc.RemoveMember(ctx, 1, group.ID, 1); !errors.Is(err, ErrGroupForbidden) {
		t.Fatalf("expected owner removal forbidden, got %v", err)
	}
	if len(cache.added) != 1 || len(cache.removed) != 1 {
		t.Fatalf("expected cache add/remove, got %+v / %+v", cache.added, cache.removed)
	}

	if err := svc.Dismiss(ctx, 2, group.ID); !errors.Is(err, ErrGroupForbidden) {
		t.Fatalf("expected non-owner dismiss forbidden, got %v", err)
	}
	if err := svc.Dismiss(ctx, 1, group.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if len(cache.dismissed) != 1 || cache.dismissed[0] != group.ID {
		t.Fatalf("expected cache dismissal, got %+v", cache.dismissed)
	}
	if _, err := svc.GetGroup(ctx, group.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound after dismissal, got %v", err)
	}
}

func TestChatService_PublicGroupSelfJoin(t *testing.T) {
	groups := newMockGroupRepo()
	svc := NewChatService(nil, &mockChatMessageRepo{}, groups, newRecordingMembership(), 20, 100)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, CreateGroupInput{OwnerID: 1, Name: "open", IsPublic: true})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := svc.AddMember(ctx, 5, group.ID, 5); err != nil {
		t.Fatalf("expected self join on public group, got %v", err)
	}
	if err := svc.AddMember(ctx, 5, group.ID, 6); !errors.Is(err, ErrGroupForbidden) {
		t.Fatalf("expected adding others forbidden, got %v", err)
	}
}

func TestChatService_LoadMemberships(t *testing.T) {
	groups := newMockGroupRepo()
	groups.groups[1] = domain.ChatGroup{ID: 1, MemberIDs: []int64{1, 2}}
	groups.groups[2] = domain.ChatGroup{ID: 2, MemberIDs: []int64{3}}
	cache := newRecordingMembership()
	svc := NewChatService(nil, &mockChatMessageRepo{}, groups, cache, 20, 100)

	n, err := svc.LoadMemberships(context.Background())
	if err != nil {
		t.Fatalf("load memberships: %v", err)
	}
	if n != 2 || len(cache.sets) != 2 {
		t.Fatalf("expected 2 groups loaded, got n=%d sets=%d", n, len(cache.sets))
	}
}

func TestChatService_NotConfigured(t *testing.T) {
	var svc *ChatService
	if _, err := svc.SavePrivate(context.Background(), domain.ChatMessage{}); !errors.Is(err, ErrChatServiceNotConfigured) {
		t.Fatalf("expected ErrChatServiceNotConfigured, got %v", err)
	}
	svc = NewChatService(nil, nil, nil, nil, 0, 0)
	if _, err := svc.GroupHistory(context.Background(), 1, 10); !errors.Is(err, ErrChatServiceNotConfigured) {
		t.Fatalf("expected ErrChatServiceNotConfigured, got %v", err)
	}
}
