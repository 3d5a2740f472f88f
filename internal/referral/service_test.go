package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/session"
	"tree_ton/internal/store"

	"github.com/jonboulle/clockwork"
)

type sentReward struct {
	chatID int64
	name   string
	reward int64
}

type recordingNotifier struct {
	sent []sentReward
}

func (n *recordingNotifier) ReferralReward(chatID int64, name string, reward int64) {
	n.sent = append(n.sent, sentReward{chatID, name, reward})
}

type fixture struct {
	svc      *Service
	store    *store.Memory
	manager  *session.Manager
	notifier *recordingNotifier
	referrer domain.User
	friend   domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	st := store.NewMemory()
	referrer := domain.NewUser(555, "alice", "Alice", "", now)
	friend := domain.NewUser(777, "bob", "Bob", "", now)
	for _, u := range []*domain.User{&referrer, &friend} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	m := session.NewManager(st, session.ManagerOptions{Session: session.Options{Clock: clockwork.NewFakeClockAt(now)}})
	t.Cleanup(m.CloseAll)
	n := &recordingNotifier{}

	return &fixture{
		svc:      NewService(st, m, n, nil, 0, "realtreeton"),
		store:    st,
		manager:  m,
		notifier: n,
		referrer: referrer,
		friend:   friend,
	}
}

func TestApplyByReferralCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.svc.Apply(ctx, f.friend, "TREE555")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.Coins != DefaultReward || updated.ReferralCount != 1 {
		t.Fatalf("referrer not credited: coins=%d count=%d", updated.Coins, updated.ReferralCount)
	}

	stored, err := f.store.GetUser(ctx, f.referrer.ID)
	if err != nil {
		t.Fatalf("get referrer: %v", err)
	}
	if stored.Coins != DefaultReward {
		t.Fatalf("stored coins = %d", stored.Coins)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	got := f.notifier.sent[0]
	if got.chatID != 555 || got.name != "@bob" || got.reward != DefaultReward {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestApplyByUserIDGoesThroughLiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Session(ctx, f.referrer.ID)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	if _, err := f.svc.Apply(ctx, f.friend, f.referrer.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if snap := s.Snapshot(); snap.Coins != DefaultReward || snap.ReferralCount != 1 {
		t.Fatalf("live session not credited: %+v", snap)
	}
}

func TestApplyRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Apply(ctx, f.referrer, "TREE555"); !errors.Is(err, domain.ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
	if _, err := f.svc.Apply(ctx, f.friend, "TREE999"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Apply(ctx, f.friend, "  "); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty param, got %v", err)
	}

	if _, err := f.svc.Apply(ctx, f.friend, "TREE555"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := f.svc.Apply(ctx, f.friend, "TREE555"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on second referral, got %v", err)
	}

	stored, _ := f.store.GetUser(ctx, f.referrer.ID)
	if stored.ReferralCount != 1 {
		t.Fatalf("referral counted twice: %d", stored.ReferralCount)
	}
}

func TestStats(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, 250, "realtreeton")
	u := domain.NewUser(42, "carol", "Carol", "", time.Now())
	u.ID = "user-42"
	u.ReferralCount = 5

	st := svc.Stats(u)
	if st.Earned != 1250 || st.Reward != 250 || st.Code != "TREE42" {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Link != "https://t.me/realtreeton?start=user-42" {
		t.Fatalf("link = %s", st.Link)
	}
	reached := 0
	for _, m := range st.Milestones {
		if m.Reached {
			reached++
		}
	}
	if reached != 2 {
		t.Fatalf("expected 2 milestones reached, got %d", reached)
	}
}
