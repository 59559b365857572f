package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"famsync/internal/live"
	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/remote/memory"
	"famsync/internal/repository"
	"famsync/internal/security"
	"famsync/internal/service"
	"famsync/internal/testutil"
)

type apiHarness struct {
	server    *httptest.Server
	store     *memory.Store
	eventRepo *repository.EventRepository
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping API test in short mode")
	}

	logger := zap.NewNop()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	db := testutil.NewTestDB(t)

	familyRepo := repository.NewFamilyRepository(db)
	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)

	tokens := security.NewTokenManager("test-secret", time.Hour)
	authService := service.NewAuthService(repository.NewAccountRepository(db), tokens, logger)
	notifier, err := service.NewEmailService(context.Background(), "us-east-1", "", "FamSync", false, logger)
	require.NoError(t, err)
	familyService := service.NewFamilyService(store, familyRepo, authService, notifier, logger)
	userService := service.NewUserService(store, userRepo, logger)
	eventService := service.NewEventService(store, eventRepo, false, logger)
	registrationService := service.NewRegistrationService(authService, familyService, userService, notifier, logger)

	access := NewFamilyAccess(familyService, userService, logger)
	routes := &Routes{
		Middleware: NewMiddleware(authService, logger),
		Auth:       NewAuthHandler(authService, registrationService, logger),
		Families:   NewFamilyHandler(familyService, access, logger),
		Access:     access,
		Events:     NewEventHandler(eventService, logger),
		Live:       NewLiveHandler(eventService, logger),
		Users:      NewUserHandler(userService, logger),
		Health:     NewHealthHandler(db, store, logger),
	}
	mux := http.NewServeMux()
	routes.Register(mux)

	server := httptest.NewServer(Logging(logger)(mux))
	t.Cleanup(server.Close)
	t.Cleanup(eventService.Close)

	return &apiHarness{server: server, store: store, eventRepo: eventRepo}
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// register creates an account with a new family and returns its session
func (h *apiHarness) register(t *testing.T, email, familyName string) (*models.Session, service.RegistrationResult) {
	t.Helper()

	resp := h.do(t, http.MethodPost, "/register", "", service.RegisterRequest{
		Email:      email,
		Password:   "password123",
		Choice:     service.FamilyCreate,
		FamilyName: familyName,
		Profile:    models.User{FirstName: "Ann"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decodeBody[service.RegistrationResult](t, resp)

	resp = h.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{Email: email, Password: "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)
	return &session, result
}

func TestSignUpAndLogin(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPost, "/auth/signup", "", credentialsRequest{Email: "ann@example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	identity := decodeBody[models.Identity](t, resp)
	assert.Equal(t, "ann@example.com", identity.Email)

	resp = h.do(t, http.MethodPost, "/auth/signup", "", credentialsRequest{Email: "ann@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{Email: "ann@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{Email: "ann@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, identity.ID, session.Identity.ID)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{"/families/F1", "/families/F1/events", "/users/u1"} {
		resp := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = h.do(t, http.MethodGet, path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	h := newAPIHarness(t)

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/auth/login", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrInvalidJSON, decodeBody[errorResponse](t, resp).Error)
}

func TestRegisterFailureReportsState(t *testing.T) {
	h := newAPIHarness(t)
	_, owner := h.register(t, "ann@example.com", "Smiths")

	resp := h.do(t, http.MethodPost, "/register", "", service.RegisterRequest{
		Email:    "bob@example.com",
		Password: "password123",
		Choice:   service.FamilyJoin,
		FamilyID: owner.FamilyID,
		PIN:      "not-the-pin",
		Profile:  models.User{FirstName: "Bob"},
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := decodeBody[registerErrorResponse](t, resp)
	assert.Equal(t, "Error while joining: family id or pin invalid.", body.Error)
	assert.Equal(t, service.StateFamilyResolved.String(), body.State)
}

func TestFamilyRoutes(t *testing.T) {
	h := newAPIHarness(t)
	session, _ := h.register(t, "ann@example.com", "Smiths")
	token := session.Token

	resp := h.do(t, http.MethodPost, "/families", token, createFamilyRequest{Name: "Joneses"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Family](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.PIN, 4)
	assert.Equal(t, session.Identity.ID, created.OwnerID)

	resp = h.do(t, http.MethodGet, "/families/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[familyResponse](t, resp)
	assert.False(t, got.Stale)
	assert.Equal(t, "Joneses", got.Family.Name)

	resp = h.do(t, http.MethodPost, "/families/"+created.ID+"/validate", token, validateFamilyRequest{PIN: created.PIN})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, familySummary{ID: created.ID, Name: "Joneses"}, decodeBody[familySummary](t, resp))

	resp = h.do(t, http.MethodPost, "/families/"+created.ID+"/validate", token, validateFamilyRequest{PIN: "0000x"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Could not join family: Incorrect Family PIN.", decodeBody[errorResponse](t, resp).Error)

	resp = h.do(t, http.MethodPost, "/families/missing/validate", token, validateFamilyRequest{PIN: "1234"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Could not join family: Family with ID 'missing' not found.", decodeBody[errorResponse](t, resp).Error)

	created.Name = "Jones Family"
	resp = h.do(t, http.MethodPut, "/families/"+created.ID, token, created)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/families/"+created.ID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/families/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOutsiderCannotReadOrChangeFamily(t *testing.T) {
	h := newAPIHarness(t)
	_, reg := h.register(t, "ann@example.com", "Smiths")
	other, _ := h.register(t, "bob@example.com", "Browns")

	resp := h.do(t, http.MethodPost, "/auth/signup", "", credentialsRequest{Email: "eve@example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{Email: "eve@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	eve := decodeBody[models.Session](t, resp)

	familyPath := "/families/" + reg.FamilyID
	for _, token := range []string{eve.Token, other.Token} {
		resp = h.do(t, http.MethodGet, familyPath, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeBody[familyResponse](t, resp)
		assert.Equal(t, "Smiths", got.Family.Name)
		assert.Empty(t, got.Family.PIN)
		assert.Empty(t, got.Family.OwnerID)

		resp = h.do(t, http.MethodPut, familyPath, token, models.Family{Name: "Taken", PIN: "0000", OwnerID: eve.Identity.ID})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = h.do(t, http.MethodDelete, familyPath, token, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		for _, path := range []string{familyPath + "/events", familyPath + "/members"} {
			resp = h.do(t, http.MethodGet, path, token, nil)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		}

		resp = h.do(t, http.MethodPost, familyPath+"/events", token, models.Event{Title: "Party"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	doc, err := h.store.Get(context.Background(), remote.FamiliesCollection, reg.FamilyID)
	require.NoError(t, err)
	var stored models.Family
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, "Smiths", stored.Name)
	assert.NotEqual(t, eve.Identity.ID, stored.OwnerID)
	assert.Len(t, stored.PIN, 4)
}

func TestGetFamilyServesCachedCopyWhenRemoteFails(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")

	h.store.FailReads(remote.ErrUnavailable)
	resp := h.do(t, http.MethodGet, "/families/"+reg.FamilyID, session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[familyResponse](t, resp)
	assert.True(t, got.Stale)
	assert.Equal(t, "Smiths", got.Family.Name)
}

func TestEventRoutes(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")
	token := session.Token
	base := "/families/" + reg.FamilyID + "/events"

	resp := h.do(t, http.MethodPost, base, token, models.Event{Title: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, base, token, models.Event{Title: "Dinner", StartDate: 1000, EndDate: 2000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	event := decodeBody[models.Event](t, resp)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, reg.FamilyID, event.FamilyID)
	assert.Equal(t, session.Identity.ID, event.CreatedBy)

	event.Title = "Late dinner"
	resp = h.do(t, http.MethodPut, base+"/"+event.ID, token, event)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Late dinner", decodeBody[models.Event](t, resp).Title)

	resp = h.do(t, http.MethodDelete, base+"/"+event.ID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting a missing event succeeds
	resp = h.do(t, http.MethodDelete, base+"/"+event.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestListEventsReadsCache(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")

	resp := h.do(t, http.MethodGet, "/families/"+reg.FamilyID+"/events", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]models.Event](t, resp))

	require.NoError(t, h.eventRepo.UpsertEvent(context.Background(), &models.Event{
		ID: "E1", FamilyID: reg.FamilyID, Title: "Dinner", Participants: []string{},
	}, true))

	resp = h.do(t, http.MethodGet, "/families/"+reg.FamilyID+"/events", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeBody[[]models.Event](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, "Dinner", events[0].Title)
}

func TestUserRoutes(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")
	other, _ := h.register(t, "bob@example.com", "Browns")
	userPath := "/users/" + session.Identity.ID

	resp := h.do(t, http.MethodGet, userPath, other.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, reg.FamilyID, decodeBody[models.User](t, resp).FamilyID)

	resp = h.do(t, http.MethodPut, userPath, other.Token, models.User{FirstName: "Mallory"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodPut, userPath, session.Token, updateUserRequest{
		User: models.User{FamilyID: reg.FamilyID, FirstName: "Annie"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Annie", decodeBody[models.User](t, resp).FirstName)

	resp = h.do(t, http.MethodGet, "/families/"+reg.FamilyID+"/members", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := decodeBody[[]models.User](t, resp)
	require.Len(t, members, 1)
	assert.Equal(t, "Annie", members[0].FirstName)

	resp = h.do(t, http.MethodDelete, userPath, session.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, userPath, session.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthResponse{Status: "ok", Database: "ok", Remote: "ok"}, decodeBody[healthResponse](t, resp))
}

func dialLive(t *testing.T, h *apiHarness, familyID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/families/" + familyID + "/events/live?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) live.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var snap live.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return snap
}

func TestLiveStream(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")
	conn := dialLive(t, h, reg.FamilyID, session.Token)

	initial := readSnapshot(t, conn)
	assert.Equal(t, reg.FamilyID, initial.FamilyID)
	assert.Empty(t, initial.Events)

	resp := h.do(t, http.MethodPost, "/families/"+reg.FamilyID+"/events", session.Token, models.Event{Title: "Dinner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var snap live.Snapshot
	for len(snap.Events) == 0 {
		snap = readSnapshot(t, conn)
	}
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Dinner", snap.Events[0].Title)
}

func TestLiveStreamClosesOnListenerError(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")
	conn := dialLive(t, h, reg.FamilyID, session.Token)
	readSnapshot(t, conn)

	require.Equal(t, 1, h.store.BreakListeners(remote.EventsCollection(reg.FamilyID), remote.ErrUnavailable))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
	assert.Contains(t, closeErr.Text, "remote store unavailable")
}

func TestLiveStreamRejectsBeforeUpgrade(t *testing.T) {
	h := newAPIHarness(t)
	session, reg := h.register(t, "ann@example.com", "Smiths")
	h.store.FailListen(remote.ErrPermissionDenied)

	resp := h.do(t, http.MethodGet, "/families/"+reg.FamilyID+"/events/live", session.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCloseFrame(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"cancelled", nil, websocket.CloseNormalClosure},
		{"shutdown", live.ErrClosed, websocket.CloseGoingAway},
		{"denied", remote.ErrPermissionDenied, websocket.ClosePolicyViolation},
		{"unavailable", remote.ErrUnavailable, websocket.CloseTryAgainLater},
		{"other", errors.New(strings.Repeat("x", 200)), websocket.CloseInternalServerErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reason := closeFrame(tt.err)
			assert.Equal(t, tt.code, code)
			assert.LessOrEqual(t, len(reason), maxCloseReason)
		})
	}
}
