package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tvlink-server/tvlink-server/internal/config"
	"github.com/tvlink-server/tvlink-server/internal/controller"
	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/internal/storage"
	"github.com/tvlink-server/tvlink-server/pkg/crypto"
)

// fakeStore backs the API with maps instead of Postgres.
type fakeStore struct {
	users map[string]*models.User
	creds map[string]*models.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*models.User),
		creds: make(map[string]*models.Credential),
	}
}

func (s *fakeStore) addUser(t *testing.T, email, password string, active, admin bool) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		IsActive:     active,
		IsAdmin:      admin,
	}
	s.users[email] = u
	return u
}

func (s *fakeStore) GetCredential(ctx context.Context, address string) (*models.Credential, error) {
	c, ok := s.creds[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) UpsertCredential(ctx context.Context, address, clientKey string, mode models.TransportMode, displayName string) error {
	s.creds[address] = &models.Credential{Address: address, ClientKey: clientKey, TransportMode: mode, Valid: true}
	return nil
}

func (s *fakeStore) InvalidateCredential(ctx context.Context, address string) error {
	c, ok := s.creds[address]
	if !ok {
		return storage.ErrNotFound
	}
	c.Valid = false
	return nil
}

func (s *fakeStore) DeleteCredential(ctx context.Context, address string) error {
	if _, ok := s.creds[address]; !ok {
		return storage.ErrNotFound
	}
	delete(s.creds, address)
	return nil
}

func (s *fakeStore) MostRecentValidCredential(ctx context.Context) (*models.Credential, error) {
	for _, c := range s.creds {
		if c.Valid {
			return c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	out := make([]*models.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	s.users[user.Email] = user
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) UpdateUser(ctx context.Context, user *models.User) error { return nil }

func (s *fakeStore) DeleteUser(ctx context.Context, id uuid.UUID) error { return nil }

func (s *fakeStore) CountUsers(ctx context.Context) (int64, error) { return int64(len(s.users)), nil }

func (s *fakeStore) Close() error { return nil }

// fakeControl scripts the orchestrator side of the API.
type fakeControl struct {
	ensureErr  error
	connectRes *controller.ConnectResult
	connectErr error
	pairRes    *controller.ConnectResult
	pairErr    error
	status     controller.Status

	disconnected bool
}

func (f *fakeControl) EnsureConnection(ctx context.Context) error { return f.ensureErr }

func (f *fakeControl) Connect(ctx context.Context, address string, mode *models.TransportMode, force bool) (*controller.ConnectResult, error) {
	return f.connectRes, f.connectErr
}

func (f *fakeControl) CompletePairing(ctx context.Context, address, pin string) (*controller.ConnectResult, error) {
	return f.pairRes, f.pairErr
}

func (f *fakeControl) Disconnect() { f.disconnected = true }

func (f *fakeControl) Status() controller.Status { return f.status }

func (f *fakeControl) Session() (*session.DeviceSession, error) {
	return nil, controller.ErrNotConnected
}

type fakeScanner struct {
	devices []models.DiscoveredDevice
}

func (f *fakeScanner) Scan(ctx context.Context, timeout time.Duration) ([]models.DiscoveredDevice, error) {
	return f.devices, nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		Discovery: config.DiscoveryConfig{Timeout: 100 * time.Millisecond},
	}
}

func newTestServer(store *fakeStore, control *fakeControl, scanner *fakeScanner) *RESTServer {
	if scanner == nil {
		scanner = &fakeScanner{}
	}
	return NewRESTServer(testConfig(), store, control, scanner)
}

func doJSON(t *testing.T, s *RESTServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *RESTServer, email, password string) TokenResponse {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: email, Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var pair TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatal(err)
	}
	return pair
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	store.addUser(t, "admin@example.com", "secret123", true, true)
	s := newTestServer(store, &fakeControl{}, nil)

	pair := login(t, s, "admin@example.com", "secret123")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("token pair incomplete")
	}

	tests := []struct {
		name string
		req  LoginRequest
		want int
	}{
		{"wrong password", LoginRequest{Email: "admin@example.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", LoginRequest{Email: "ghost@example.com", Password: "secret123"}, http.StatusUnauthorized},
		{"missing fields", LoginRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", tt.req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	store := newFakeStore()
	store.addUser(t, "old@example.com", "secret123", false, false)
	s := newTestServer(store, &fakeControl{}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "old@example.com", Password: "secret123"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRefreshToken(t *testing.T) {
	store := newFakeStore()
	store.addUser(t, "admin@example.com", "secret123", true, true)
	s := newTestServer(store, &fakeControl{}, nil)

	pair := login(t, s, "admin@example.com", "secret123")

	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: pair.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", w.Code, w.Body.String())
	}
	var renewed TokenResponse
	json.Unmarshal(w.Body.Bytes(), &renewed)
	if renewed.AccessToken == "" {
		t.Error("no access token issued")
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage refresh status = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, &fakeControl{}, nil)

	w := doJSON(t, s, http.MethodGet, "/api/v1/session", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/session", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeControl{}, nil)
	w := doJSON(t, s, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func authedServer(t *testing.T, control *fakeControl, scanner *fakeScanner) (*RESTServer, string, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.addUser(t, "admin@example.com", "secret123", true, true)
	s := newTestServer(store, control, scanner)
	pair := login(t, s, "admin@example.com", "secret123")
	return s, pair.AccessToken, store
}

func TestSessionStatusEndpoint(t *testing.T) {
	control := &fakeControl{status: controller.Status{
		Connected:     true,
		Address:       "192.168.1.23",
		State:         session.StateAuthenticated,
		TransportMode: models.TransportSecure,
	}}
	s, token, _ := authedServer(t, control, nil)

	w := doJSON(t, s, http.MethodGet, "/api/v1/session", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st controller.Status
	json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Connected || st.Address != "192.168.1.23" {
		t.Errorf("body = %+v", st)
	}
}

func TestSessionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no stored device", controller.ErrNoStoredDevice, http.StatusNotFound},
		{"credential rejected", session.ErrCredentialRejected, http.StatusUnauthorized},
		{"connect timeout", session.ErrConnectTimeout, http.StatusGatewayTimeout},
		{"pairing timeout", session.ErrPairingTimeout, http.StatusGatewayTimeout},
		{"transport", session.ErrTransport, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, token, _ := authedServer(t, &fakeControl{ensureErr: tt.err}, nil)
			w := doJSON(t, s, http.MethodPost, "/api/v1/session/ensure", token, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestConnectEndpoint(t *testing.T) {
	control := &fakeControl{connectRes: &controller.ConnectResult{
		Status:        controller.StatusPairingRequired,
		Address:       "192.168.1.23",
		TransportMode: models.TransportSecure,
	}}
	s, token, _ := authedServer(t, control, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/session/connect", token,
		ConnectRequest{Address: "192.168.1.23"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res controller.ConnectResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Status != controller.StatusPairingRequired {
		t.Errorf("result = %+v", res)
	}

	// 地址与模式经过校验
	w = doJSON(t, s, http.MethodPost, "/api/v1/session/connect", token,
		ConnectRequest{Address: "not-an-ip"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/session/connect", token,
		ConnectRequest{Address: "192.168.1.23", Mode: "plaintext"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d", w.Code)
	}
}

func TestPairEndpoint(t *testing.T) {
	s, token, _ := authedServer(t, &fakeControl{pairErr: controller.ErrNoPendingPairing}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/session/pair", token,
		PairRequest{Address: "192.168.1.23", PIN: "1234"})
	if w.Code != http.StatusConflict {
		t.Errorf("no pending status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/session/pair", token,
		PairRequest{Address: "192.168.1.23", PIN: "12ab"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric pin status = %d", w.Code)
	}
}

func TestInvalidPINMapsTo400(t *testing.T) {
	s, token, _ := authedServer(t, &fakeControl{pairErr: session.ErrInvalidPIN}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/session/pair", token,
		PairRequest{Address: "192.168.1.23", PIN: "9999"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid pin status = %d", w.Code)
	}
}

func TestTVCommandWithoutSession(t *testing.T) {
	s, token, _ := authedServer(t, &fakeControl{}, nil)

	w := doJSON(t, s, http.MethodGet, "/api/v1/tv/volume", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestMediaUnknownAction(t *testing.T) {
	s, token, _ := authedServer(t, &fakeControl{}, nil)

	// 非法动作在会话检查之前就被拒绝
	w := doJSON(t, s, http.MethodPost, "/api/v1/tv/media/eject", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want 400", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/tv/media/pause", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("valid action without session status = %d, want 409", w.Code)
	}
}

func TestDisconnectEndpoint(t *testing.T) {
	control := &fakeControl{}
	s, token, _ := authedServer(t, control, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/session/disconnect", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !control.disconnected {
		t.Error("disconnect never reached the orchestrator")
	}
}

func TestDeviceEndpoints(t *testing.T) {
	s, token, store := authedServer(t, &fakeControl{}, nil)
	store.creds["192.168.1.23"] = &models.Credential{Address: "192.168.1.23", ClientKey: "k", Valid: true}

	w := doJSON(t, s, http.MethodGet, "/api/v1/devices/", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Errorf("count = %d", body.Count)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/devices/not-an-ip", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/devices/10.0.0.9", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/devices/192.168.1.23", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if _, ok := store.creds["192.168.1.23"]; ok {
		t.Error("credential not deleted")
	}
}

func TestDeviceDeleteRequiresAdmin(t *testing.T) {
	s, _, store := authedServer(t, &fakeControl{}, nil)
	store.addUser(t, "viewer@example.com", "secret123", true, false)
	store.creds["192.168.1.23"] = &models.Credential{Address: "192.168.1.23", Valid: true}

	pair := login(t, s, "viewer@example.com", "secret123")

	// 普通用户可以查看但不能删除
	w := doJSON(t, s, http.MethodGet, "/api/v1/devices", pair.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("list status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/devices/192.168.1.23", pair.AccessToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("delete status = %d, want 403", w.Code)
	}
	if _, ok := store.creds["192.168.1.23"]; !ok {
		t.Error("credential deleted by non-admin")
	}
}

func TestDiscoveryScanEndpoint(t *testing.T) {
	scanner := &fakeScanner{devices: []models.DiscoveredDevice{
		{Address: "192.168.1.23", Name: "Living Room TV"},
		{Address: "192.168.1.40", Name: "Bedroom TV"},
	}}
	s, token, _ := authedServer(t, &fakeControl{}, scanner)

	w := doJSON(t, s, http.MethodPost, "/api/v1/discovery/scan", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 2 {
		t.Errorf("count = %d", body.Count)
	}
}
