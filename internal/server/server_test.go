package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/inkpanel/panelpay/internal/checkout"
	"github.com/inkpanel/panelpay/internal/config"
	"github.com/inkpanel/panelpay/internal/pricing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRefundProvider implements refund.ProviderClient for testing
type fakeRefundProvider struct{}

func (f *fakeRefundProvider) Refund(ctx context.Context, chargeID, reason string) (string, error) {
	return "re_test", nil
}

// fakeSessionCreator implements checkout.SessionCreator for testing
type fakeSessionCreator struct{}

func (f *fakeSessionCreator) CreateSession(ctx context.Context, userID string, packs int64, rule pricing.Rule) (*checkout.Session, error) {
	return &checkout.Session{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "development",
		LogLevel:         "error",
		LogFormat:        "text",
		PackPriceDollars: 5,
		PanelsPerPack:    50,
		SpendRateRPS:     1000,
		AdminSecret:      "test-secret",
	}
}

// newTestServer creates an in-memory server with fake provider clients
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(),
		WithRefundProvider(&fakeRefundProvider{}),
		WithSessionCreator(&fakeSessionCreator{}),
	)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	s.router.ServeHTTP(w, req)
	return w
}

var adminHeader = map[string]string{"X-Admin-Secret": "test-secret"}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health/ready", "", nil)
	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"POST:/webhooks/stripe",
		"GET:/v1/users/:id/balance",
		"POST:/v1/users/:id/spend",
		"GET:/v1/users/:id/purchases",
		"POST:/v1/checkout/sessions",
		"POST:/v1/admin/grants",
		"POST:/v1/admin/refunds",
		"GET:/v1/admin/purchases",
		"GET:/ws",
		"GET:/metrics",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end purchase flow (in-memory mode, unsigned webhooks)
// ---------------------------------------------------------------------------

func webhookPayload(eventID, userID string, amountCents int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_%s",
			"client_reference_id": %q,
			"amount_total": %d
		}}
	}`, eventID, eventID, userID, amountCents)
}

func TestCheckoutWebhookCreditsBalance(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/webhooks/stripe", webhookPayload("evt_1", "u1", 500), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var balResp struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &balResp); err != nil {
		t.Fatalf("Failed to parse balance: %v", err)
	}
	if balResp.Balance != 50 {
		t.Errorf("Expected balance 50 after $5 checkout, got %d", balResp.Balance)
	}

	// Redelivery acknowledges without double credit
	w = doJSON(s, "POST", "/webhooks/stripe", webhookPayload("evt_1", "u1", 500), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on redelivery, got %d", w.Code)
	}
	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &balResp)
	if balResp.Balance != 50 {
		t.Errorf("Redelivery changed balance: got %d", balResp.Balance)
	}

	// The purchase shows up in history
	w = doJSON(s, "GET", "/v1/users/u1/purchases", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var histResp struct {
		Purchases []map[string]interface{} `json:"purchases"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &histResp); err != nil {
		t.Fatalf("Failed to parse purchases: %v", err)
	}
	if len(histResp.Purchases) != 1 {
		t.Errorf("Expected 1 purchase, got %d", len(histResp.Purchases))
	}
}

func TestSpendEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(s, "POST", "/webhooks/stripe", webhookPayload("evt_1", "u1", 500), nil)

	// Spend one panel
	w := doJSON(s, "POST", "/v1/users/u1/spend", `{"amount":1}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Balance != 49 {
		t.Errorf("Expected balance 49 after spend, got %d", resp.Balance)
	}

	// Over-spend is denied with 402, balance untouched
	w = doJSON(s, "POST", "/v1/users/u1/spend", `{"amount":100}`, nil)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 on insufficient balance, got %d", w.Code)
	}
	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Balance != 49 {
		t.Errorf("Denied spend changed balance: got %d", resp.Balance)
	}
}

func TestSmallPaymentGrantsNothing(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/webhooks/stripe", webhookPayload("evt_small", "u1", 100), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 (acknowledged no-op), got %d", w.Code)
	}

	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	var resp struct {
		Balance int64 `json:"balance"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Balance != 0 {
		t.Errorf("Expected 0 balance after sub-pack payment, got %d", resp.Balance)
	}
}

// ---------------------------------------------------------------------------
// Admin routes
// ---------------------------------------------------------------------------

func TestAdminGrantRequiresSecret(t *testing.T) {
	s := newTestServer(t)

	body := `{"userId":"u2","panels":50,"note":"comp"}`

	w := doJSON(s, "POST", "/v1/admin/grants", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without secret, got %d", w.Code)
	}

	w = doJSON(s, "POST", "/v1/admin/grants", body, adminHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	w = doJSON(s, "GET", "/v1/users/u2/balance", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Balance != 50 {
		t.Errorf("Expected balance 50 after manual grant, got %d", resp.Balance)
	}
}

func TestAdminRefundFlow(t *testing.T) {
	s := newTestServer(t)

	doJSON(s, "POST", "/webhooks/stripe", webhookPayload("evt_1", "u1", 500), nil)

	w := doJSON(s, "POST", "/v1/admin/refunds", `{"chargeId":"cs_evt_1","reason":"requested_by_customer"}`, adminHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ProviderRefundID string `json:"providerRefundId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse refund response: %v", err)
	}
	if resp.ProviderRefundID != "re_test" {
		t.Errorf("Expected provider refund id re_test, got %s", resp.ProviderRefundID)
	}

	// Refund does not claw back the credits
	var bal struct {
		Balance int64 `json:"balance"`
	}
	w = doJSON(s, "GET", "/v1/users/u1/balance", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.Balance != 50 {
		t.Errorf("Refund changed balance: got %d", bal.Balance)
	}

	// Unknown charge is a 404
	w = doJSON(s, "POST", "/v1/admin/refunds", `{"chargeId":"cs_missing"}`, adminHeader)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown charge, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

func TestCheckoutSessionEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/checkout/sessions", `{"userId":"u1","packs":2}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse session: %v", err)
	}
	if resp.ID != "cs_test" || resp.URL == "" {
		t.Errorf("Unexpected session response: %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/v1/nonexistent", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
