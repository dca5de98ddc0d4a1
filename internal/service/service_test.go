package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rent_bot/internal/model"
	"rent_bot/internal/storage"
)

type mockGateway struct {
	posts     []model.Post
	wallErr   error
	member    bool
	memberErr error

	gotOwnerID int64
}

func (m *mockGateway) WallGet(_ context.Context, ownerID int64, _ int) ([]model.Post, error) {
	m.gotOwnerID = ownerID
	if m.wallErr != nil {
		return nil, m.wallErr
	}
	return m.posts, nil
}

func (m *mockGateway) IsGroupMember(_ context.Context, _, _ int64) (bool, error) {
	if m.memberErr != nil {
		return false, m.memberErr
	}
	return m.member, nil
}

func int64p(v int64) *int64 { return &v }

func newTestService(t *testing.T, gw *mockGateway) (*Service, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, gw, 12345, 5, 2, log), store
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &mockGateway{member: true})

	id, err := svc.CreateSubscription(ctx, 42, model.FilterSpec{District: "Центр"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("expected 8-char id, got %q", id)
	}

	subs, err := store.GetUserSubscriptions(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Filters.District != "Центр" {
		t.Errorf("unexpected stored subscriptions: %+v", subs)
	}
}

func TestCreateSubscriptionStripsRecency(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &mockGateway{})

	if _, err := svc.CreateSubscription(ctx, 42, model.FilterSpec{
		District:   "Центр",
		RecentDays: int64p(7),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	subs, _ := store.GetUserSubscriptions(ctx, 42)
	if subs[0].Filters.RecentDays != nil {
		t.Error("recency window must not be persisted on a subscription")
	}
}

func TestCreateSubscriptionInvalidFilters(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{})

	_, err := svc.CreateSubscription(context.Background(), 42, model.FilterSpec{
		PriceMin: int64p(40000),
		PriceMax: int64p(20000),
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
}

func TestCreateSubscriptionDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &mockGateway{})

	filters := model.FilterSpec{District: "Центр", Rooms: int64p(2)}
	if _, err := svc.CreateSubscription(ctx, 42, filters); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.CreateSubscription(ctx, 42, filters)
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}

	// The recency window does not distinguish subscriptions.
	withRecency := filters
	withRecency.RecentDays = int64p(7)
	_, err = svc.CreateSubscription(ctx, 42, withRecency)
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription for recency-only variant, got %v", err)
	}

	// Another user is free to use the same filters.
	if _, err := svc.CreateSubscription(ctx, 77, filters); err != nil {
		t.Fatalf("create for other user: %v", err)
	}
}

func TestCreateSubscriptionDuplicateOfDisabled(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &mockGateway{})

	filters := model.FilterSpec{District: "Центр"}
	id, err := svc.CreateSubscription(ctx, 42, filters)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.ToggleSubscription(ctx, 42, id); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if _, err := svc.CreateSubscription(ctx, 42, filters); err != nil {
		t.Errorf("disabled subscription must not block a new one: %v", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		member: true,
		posts: []model.Post{
			{ID: 105, Text: "Район: Центр\nЦена: 30000\nКомнат: 2", Date: 1717200000},
			{ID: 104, Text: "просто пост", Date: 1717100000},
			{ID: 103, Text: "Район: Центр\nЦена: 45000\nКомнат: 3", Date: 1717000000},
			{ID: 102, Text: "Район: Центр\nЦена: 28000\nКомнат: 2", Date: 1716900000},
		},
	}
	svc, _ := newTestService(t, gw)

	results, err := svc.Search(ctx, 42, model.FilterSpec{
		District: "Центр",
		PriceMax: int64p(35000),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var ids []int64
	for _, r := range results {
		ids = append(ids, r.Post.ID)
	}
	if diff := cmp.Diff([]int64{102, 105}, ids); diff != "" {
		t.Errorf("result ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(-12345), gw.gotOwnerID); diff != "" {
		t.Errorf("owner_id mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchLimitKeepsNewest(t *testing.T) {
	var posts []model.Post
	// Newest first, the way the wall returns them.
	for id := int64(110); id >= 101; id-- {
		posts = append(posts, model.Post{ID: id, Text: "Цена: 30000", Date: 1717200000})
	}
	gw := &mockGateway{member: true, posts: posts}
	svc, _ := newTestService(t, gw)

	results, err := svc.Search(context.Background(), 42, model.FilterSpec{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var ids []int64
	for _, r := range results {
		ids = append(ids, r.Post.ID)
	}
	if diff := cmp.Diff([]int64{106, 107, 108, 109, 110}, ids); diff != "" {
		t.Errorf("limit must keep the newest matches, oldest first (-want +got):\n%s", diff)
	}
}

func TestSearchQuotaForNonMembers(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{
		member: false,
		posts:  []model.Post{{ID: 105, Text: "Цена: 30000", Date: 1717200000}},
	}
	svc, _ := newTestService(t, gw)

	for i := 0; i < 2; i++ {
		if _, err := svc.Search(ctx, 42, model.FilterSpec{}); err != nil {
			t.Fatalf("free search %d: %v", i+1, err)
		}
	}

	_, err := svc.Search(ctx, 42, model.FilterSpec{})
	if !errors.Is(err, ErrSearchLimitReached) {
		t.Fatalf("expected ErrSearchLimitReached, got %v", err)
	}

	// Joining the community lifts the limit and clears the counter.
	gw.member = true
	if _, err := svc.Search(ctx, 42, model.FilterSpec{}); err != nil {
		t.Fatalf("member search: %v", err)
	}
	gw.member = false
	if _, err := svc.Search(ctx, 42, model.FilterSpec{}); err != nil {
		t.Fatalf("search after counter reset: %v", err)
	}
}

func TestSearchWallError(t *testing.T) {
	gw := &mockGateway{member: true, wallErr: io.ErrUnexpectedEOF}
	svc, _ := newTestService(t, gw)

	if _, err := svc.Search(context.Background(), 42, model.FilterSpec{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
