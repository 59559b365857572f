package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"famsync/internal/database"
	"famsync/internal/live"
	"famsync/internal/models"
	"famsync/internal/remote/memory"
	"famsync/internal/repository"
	"famsync/internal/security"
	"famsync/internal/service"
	"famsync/internal/testutil"
)

type sentEmail struct {
	kind string
	to   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (n *fakeNotifier) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	n.record("welcome", toEmail)
	return nil
}

func (n *fakeNotifier) SendFamilyCreatedEmail(ctx context.Context, toEmail string, family *models.Family) error {
	n.record("family", toEmail)
	return nil
}

func (n *fakeNotifier) record(kind, to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind: kind, to: to})
}

func (n *fakeNotifier) emails() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

type harness struct {
	store        *memory.Store
	db           *database.DB
	familyRepo   *repository.FamilyRepository
	eventRepo    *repository.EventRepository
	userRepo     *repository.UserRepository
	auth         *service.AuthService
	events       *service.EventService
	families     *service.FamilyService
	users        *service.UserService
	registration *service.RegistrationService
	notifier     *fakeNotifier
}

func newHarness(t *testing.T, mirror bool) *harness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping service test in short mode")
	}

	logger := zap.NewNop()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	db := testutil.NewTestDB(t)

	h := &harness{
		store:      store,
		db:         db,
		familyRepo: repository.NewFamilyRepository(db),
		eventRepo:  repository.NewEventRepository(db),
		userRepo:   repository.NewUserRepository(db),
		notifier:   &fakeNotifier{},
	}

	tokens := security.NewTokenManager("test-secret", time.Hour)
	h.auth = service.NewAuthService(repository.NewAccountRepository(db), tokens, logger)
	h.events = service.NewEventService(store, h.eventRepo, mirror, logger)
	t.Cleanup(h.events.Close)
	h.families = service.NewFamilyService(store, h.familyRepo, h.auth, h.notifier, logger)
	h.users = service.NewUserService(store, h.userRepo, logger)
	h.registration = service.NewRegistrationService(h.auth, h.families, h.users, h.notifier, logger)
	return h
}

// signedIn creates an account and returns a context carrying its identity
func (h *harness) signedIn(t *testing.T, email string) (context.Context, *models.Identity) {
	t.Helper()
	identity, err := h.auth.CreateAccount(context.Background(), email, "password123")
	require.NoError(t, err)
	return service.WithIdentity(context.Background(), identity), identity
}

// waitFor reads snapshots until match accepts one
func waitFor(t *testing.T, sub *live.Subscription, match func(live.Snapshot) bool) live.Snapshot {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-sub.C():
			require.True(t, ok, "subscription closed: %v", sub.Err())
			if match(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for matching snapshot")
			return live.Snapshot{}
		}
	}
}

func eventIDs(snap live.Snapshot) []string {
	ids := make([]string, 0, len(snap.Events))
	for _, e := range snap.Events {
		ids = append(ids, e.ID)
	}
	return ids
}

func containsEvent(id string) func(live.Snapshot) bool {
	return func(snap live.Snapshot) bool {
		for _, e := range snap.Events {
			if e.ID == id {
				return true
			}
		}
		return false
	}
}
