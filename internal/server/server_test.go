package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"weekendwill/internal/config"
	"weekendwill/internal/db"
	"weekendwill/internal/domain"
	"weekendwill/internal/engine"
	"weekendwill/internal/migrate"
)

const (
	testJWTSecret  = "test-secret"
	testBillingKey = "test-billing-key"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:  testJWTSecret,
			DevLogin:   true,
			BillingKey: testBillingKey,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeader(t *testing.T, userID string, scopes ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testJWTSecret, userID, scopes, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createWill(t *testing.T, srv *testServer, headers map[string]string) domain.Will {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/wills", map[string]any{"state": "CA"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create will status %d: %s", res.StatusCode, string(data))
	}
	var w domain.Will
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal will: %v", err)
	}
	return w
}

func putSection(t *testing.T, srv *testServer, headers map[string]string, willID, section string, payload any) domain.Will {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/wills/"+willID+"/sections/"+section, payload, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put section %s status %d: %s", section, res.StatusCode, string(data))
	}
	var w domain.Will
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal will: %v", err)
	}
	return w
}

// fillRequired pushes a draft to 100% over the API.
func fillRequired(t *testing.T, srv *testServer, headers map[string]string, willID string) domain.Will {
	t.Helper()
	var w domain.Will
	w = putSection(t, srv, headers, willID, "testator", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"address":    map[string]any{"street": "1 Main St", "city": "Oakland", "state": "CA", "zip": "94601"},
	})
	w = putSection(t, srv, headers, willID, "spouse", map[string]any{
		"first_name": "William", "last_name": "King",
	})
	w = putSection(t, srv, headers, willID, "executors", []map[string]any{
		{"first_name": "Grace", "last_name": "Hopper", "relationship": "friend"},
	})
	w = putSection(t, srv, headers, willID, "personal-property", []map[string]any{
		{"type": "vehicle", "description": "1962 sedan", "estimated_value": 9000},
	})
	w = putSection(t, srv, headers, willID, "residual-estate", map[string]any{
		"beneficiaries": []map[string]any{{"name": "William King", "percentage": 100}},
	})
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/wills", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "unauthorized" {
		t.Fatalf("code %q", env.Error.Code)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestWillLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")

	w := createWill(t, srv, headers)
	if w.Status != domain.StatusDraft || w.Version != 1 {
		t.Fatalf("unexpected fresh will: status=%s version=%d", w.Status, w.Version)
	}

	w = fillRequired(t, srv, headers, w.ID)
	if w.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s at %d%%", w.Status, w.Progress.PercentComplete)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/wills/"+w.ID+"/execution-status", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("execution-status %d: %s", res.StatusCode, string(data))
	}
	var st ExecutionStatusResponse
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.CanBeExecuted {
		t.Fatalf("expected executable, blockers: %v", st.Blockers)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/wills/"+w.ID+"/execute", map[string]any{
		"execution_date": "2025-03-01",
		"location":       "Oakland, CA",
		"witnesses": []map[string]any{
			{"first_name": "Wit", "last_name": "One", "address": map[string]any{"street": "2 Oak", "city": "Oakland", "state": "CA", "zip": "94601"}},
			{"first_name": "Wit", "last_name": "Two", "address": map[string]any{"street": "3 Oak", "city": "Oakland", "state": "CA", "zip": "94601"}},
		},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("execute %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal executed will: %v", err)
	}
	if w.Status != domain.StatusExecuted || w.ExecutedAt == nil {
		t.Fatalf("expected executed will, got %s", w.Status)
	}

	// executed wills are frozen
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/wills/"+w.ID+"/sections/spouse", map[string]any{
		"first_name": "Someone", "last_name": "Else",
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("edit after execute %d: %s", res.StatusCode, string(data))
	}
}

func TestExecuteDraftRejectedWithoutWrites(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")

	w := createWill(t, srv, headers)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/wills/"+w.ID+"/execute", map[string]any{
		"execution_date": "2025-03-01",
		"location":       "Oakland, CA",
		"witnesses": []map[string]any{
			{"first_name": "Wit", "last_name": "One"},
			{"first_name": "Wit", "last_name": "Two"},
		},
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "not_executable" {
		t.Fatalf("code %q", env.Error.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/wills/"+w.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get %d: %s", res.StatusCode, string(data))
	}
	var got domain.Will
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != domain.StatusDraft || got.WitnessInfo != nil {
		t.Fatalf("failed execute left writes: status=%s", got.Status)
	}
}

func TestForeignWillIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	owner := authHeader(t, "owner")
	stranger := authHeader(t, "stranger")
	w := createWill(t, srv, owner)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/wills/"+w.ID, nil, stranger)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/wills/"+w.ID, nil, stranger)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
}

func TestSectionVersionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")
	w := createWill(t, srv, headers)

	stale := map[string]string{"If-Match": "9"}
	for k, v := range headers {
		stale[k] = v
	}
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/wills/"+w.ID+"/sections/spouse", map[string]any{
		"first_name": "A", "last_name": "B",
	}, stale)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "version_conflict" {
		t.Fatalf("code %q", env.Error.Code)
	}
}

func TestInvalidSectionPayloadIs422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")
	w := createWill(t, srv, headers)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/wills/"+w.ID+"/sections/testator", map[string]any{
		"first_name": "OnlyFirst",
	}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "validation_failed" {
		t.Fatalf("code %q", env.Error.Code)
	}
}

func TestPhotoPremiumGateAndBillingWebhook(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")
	w := createWill(t, srv, headers)

	photo := map[string]any{"url": "https://cdn.example.com/p.jpg", "caption": "ring"}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/wills/"+w.ID+"/photos", photo, headers)
	if res.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("free tier photo status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "premium_required" {
		t.Fatalf("code %q", env.Error.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/webhooks/billing", map[string]any{
		"user_id": "user-1",
		"status":  "active",
		"plan":    "premium-annual",
	}, map[string]string{"X-Billing-Key": testBillingKey})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("billing webhook status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/wills/"+w.ID+"/photos", photo, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("premium photo status %d: %s", res.StatusCode, string(data))
	}
}

func TestBillingWebhookRejectsBadKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/webhooks/billing", map[string]any{
		"user_id": "user-1",
		"status":  "active",
	}, map[string]string{"X-Billing-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestInterviewOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeader(t, "user-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/interview", map[string]any{"state": "CA"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var st struct {
		Will domain.Will `json:"will"`
		Step string      `json:"step"`
	}
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Step != "personal-info" {
		t.Fatalf("step %q", st.Step)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/interview/"+st.Will.ID+"/steps/personal-info", map[string]any{
		"sections": map[string]any{
			"testator": map[string]any{
				"first_name": "Ada",
				"last_name":  "Lovelace",
				"address":    map[string]any{"street": "1 Main St", "city": "Oakland", "state": "CA", "zip": "94601"},
			},
		},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Step != "family" {
		t.Fatalf("expected advance to family, got %q", st.Step)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": "dev-user"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/wills", nil, map[string]string{
		"Authorization": "Bearer " + tok.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list with minted token status %d: %s", res.StatusCode, string(data))
	}
}

func TestSearchScopesNonAdminsToSelf(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	alice := authHeader(t, "alice")
	bob := authHeader(t, "bob")
	admin := authHeader(t, "root", ScopeAdmin)
	createWill(t, srv, alice)
	createWill(t, srv, bob)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/search/wills", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search status %d: %s", res.StatusCode, string(data))
	}
	var sr SearchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		t.Fatalf("unmarshal search: %v", err)
	}
	if sr.Total != 1 {
		t.Fatalf("alice should only see her own will, total=%d", sr.Total)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/search/wills", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin search status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &sr); err != nil {
		t.Fatalf("unmarshal search: %v", err)
	}
	if sr.Total != 2 {
		t.Fatalf("admin should see both wills, total=%d", sr.Total)
	}
}
