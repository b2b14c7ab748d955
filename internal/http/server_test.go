package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coparent/internal/auth"
	"coparent/internal/memory"
	"coparent/internal/services"
)

type testServer struct {
	*Server
	t *testing.T
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	store := memory.New()
	settlement := services.NewSettlementService(store, store, nil)
	expenses := services.NewExpenseService(store, nil, settlement, nil)
	tokens := auth.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour)
	otp := auth.NewOTPManager(auth.OTPConfig{Cooldown: time.Minute, TTL: 5 * time.Minute, MaxAttempts: 3})

	srv := NewServer(":0", Services{
		Auth:        services.NewAuthService(store, tokens, otp, nil, nil),
		Accounts:    services.NewAccountService(store, settlement, nil),
		Invitations: services.NewInvitationService(store, settlement, "https://app.example.com", nil),
		Expenses:    expenses,
		Settlement:  settlement,
		Reports:     services.NewReportService(store),
		Receipts:    services.NewReceiptService(nil, store, expenses),
		Store:       store,
	}, Options{RateLimit: rateLimit})
	t.Cleanup(func() { srv.limiter.stop() })
	return &testServer{Server: srv, t: t}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (ts *testServer) register(email, name string) sessionJSON {
	ts.t.Helper()
	rr := ts.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "correct-horse", "name": name,
	})
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[sessionJSON](ts.t, rr)
}

// family registers Dana and Yoni and joins them in one account.
func (ts *testServer) family() (dana, yoni sessionJSON, accountID string) {
	ts.t.Helper()
	dana = ts.register("dana@example.com", "Dana")
	yoni = ts.register("yoni@example.com", "Yoni")

	rr := ts.do(http.MethodPost, "/api/v1/accounts", dana.Token, map[string]string{"name": "Home"})
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	accountID = decode[accountJSON](ts.t, rr).ID

	rr = ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/invitations", dana.Token,
		map[string]string{"email": "yoni@example.com"})
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	invite := decode[struct {
		Link string `json:"link"`
	}](ts.t, rr)
	token := invite.Link[strings.LastIndex(invite.Link, "/")+1:]

	rr = ts.do(http.MethodPost, "/api/v1/invitations/"+token+"/accept", yoni.Token, nil)
	require.Equal(ts.t, http.StatusOK, rr.Code, rr.Body.String())
	return dana, yoni, accountID
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(http.MethodGet, "/api/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", decode[errorBody](t, rr).Code)

	rr = ts.do(http.MethodGet, "/api/v1/accounts", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, int64(2), ts.SecurityMetrics().AuthFailures)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.register("dana@example.com", "Dana")

	rr := ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "dana@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "DANA@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	session := decode[sessionJSON](t, rr)
	assert.False(t, session.Created)

	rr = ts.do(http.MethodGet, "/api/v1/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Dana", decode[userJSON](t, rr).Name)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "dana@example.com", "password": "short", "name": "Dana",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	ts.register("dana@example.com", "Dana")
	rr = ts.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "dana@example.com", "password": "correct-horse", "name": "Dana",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestExpenseLifecycleAndSettlement(t *testing.T) {
	ts := newTestServer(t, 0)
	dana, yoni, accountID := ts.family()

	rr := ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/expenses", dana.Token, map[string]any{
		"date": "2024-06-12", "description": "Shoes", "amount": "100", "category": "Clothing",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[expenseJSON](t, rr)
	assert.Equal(t, dana.User.ID, created.PaidByID)
	assert.True(t, created.SplitEqually)
	assert.Equal(t, "approved", string(created.Status))
	assert.Equal(t, moneyJSON{Agorot: 10000, Formatted: "₪100"}, created.Amount)

	// Yoni records an expense Dana paid, so it waits for approval.
	rr = ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/expenses", yoni.Token, map[string]any{
		"date": "2024-06-13", "description": "Books", "amount": "40", "category": "School",
		"paid_by_id": dana.User.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	pending := decode[expenseJSON](t, rr)
	assert.Equal(t, "pending", string(pending.Status))

	rr = ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/expenses?status=pending", yoni.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Expenses []expenseJSON `json:"expenses"`
	}](t, rr)
	require.Len(t, list.Expenses, 1)
	assert.Equal(t, pending.ID, list.Expenses[0].ID)

	rr = ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/settlement", yoni.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[settlementJSON](t, rr)
	assert.Equal(t, "receivable", string(report.View))
	assert.Equal(t, "all", string(report.Period.Type))

	var approved *bucketJSON
	for i := range report.Buckets {
		if report.Buckets[i].Status == "approved" {
			approved = &report.Buckets[i]
		}
	}
	require.NotNil(t, approved)
	require.NotNil(t, approved.Transfer)
	assert.False(t, approved.Transfer.Settled)
	assert.Equal(t, yoni.User.ID, approved.Transfer.FromUserID)
	assert.Equal(t, dana.User.ID, approved.Transfer.ToUserID)
	assert.Equal(t, int64(5000), approved.Transfer.Amount.Agorot)

	rr = ts.do(http.MethodPost, "/api/v1/expenses/"+pending.ID+"/status", yoni.Token, map[string]string{"status": "Approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "approved", string(decode[expenseJSON](t, rr).Status))

	rr = ts.do(http.MethodPost, "/api/v1/expenses/"+pending.ID+"/status", yoni.Token, map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/settlement", yoni.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report = decode[settlementJSON](t, rr)
	for _, b := range report.Buckets {
		if b.Status == "approved" {
			require.NotNil(t, b.Transfer)
			assert.Equal(t, int64(7000), b.Transfer.Amount.Agorot)
		}
	}
}

func TestSettlementRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, 0)
	dana, _, accountID := ts.family()

	rr := ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/settlement?period=fortnight", dana.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/settlement?view=sideways", dana.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/settlement?period=month&month=13&year=2024", dana.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestNonMemberIsForbidden(t *testing.T) {
	ts := newTestServer(t, 0)
	_, _, accountID := ts.family()
	stranger := ts.register("eve@example.com", "Eve")

	for _, path := range []string{
		"/api/v1/accounts/" + accountID,
		"/api/v1/accounts/" + accountID + "/expenses",
		"/api/v1/accounts/" + accountID + "/settlement",
		"/api/v1/accounts/" + accountID + "/report?period=year&year=2024",
	} {
		rr := ts.do(http.MethodGet, path, stranger.Token, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code, path)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	ts := newTestServer(t, 0)
	dana, _, accountID := ts.family()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad amount", map[string]any{"description": "x", "amount": "-5", "category": "Food"}},
		{"bad date", map[string]any{"description": "x", "amount": "5", "category": "Food", "date": "12/06/2024"}},
		{"empty description", map[string]any{"amount": "5", "category": "Food"}},
		{"unknown payer", map[string]any{"description": "x", "amount": "5", "category": "Food", "paid_by_id": "nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/expenses", dana.Token, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
		})
	}
}

func TestInvitationPreviewAndReuse(t *testing.T) {
	ts := newTestServer(t, 0)
	dana := ts.register("dana@example.com", "Dana")
	rr := ts.do(http.MethodPost, "/api/v1/accounts", dana.Token, map[string]string{"name": "Home"})
	require.Equal(t, http.StatusCreated, rr.Code)
	accountID := decode[accountJSON](t, rr).ID

	rr = ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/invitations", dana.Token, map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/invitations", dana.Token,
		map[string]string{"email": "yoni@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code)
	link := decode[struct {
		Link string `json:"link"`
	}](t, rr).Link
	require.True(t, strings.HasPrefix(link, "https://app.example.com/invite/"))
	token := strings.TrimPrefix(link, "https://app.example.com/invite/")

	rr = ts.do(http.MethodGet, "/api/v1/invitations/"+token, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	preview := decode[map[string]any](t, rr)
	assert.Equal(t, "Home", preview["account_name"])
	assert.Equal(t, "Dana", preview["inviter_name"])

	yoni := ts.register("yoni@example.com", "Yoni")
	rr = ts.do(http.MethodPost, "/api/v1/invitations/"+token+"/accept", yoni.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	eve := ts.register("eve@example.com", "Eve")
	rr = ts.do(http.MethodPost, "/api/v1/invitations/"+token+"/accept", eve.Token, nil)
	assert.Equal(t, http.StatusGone, rr.Code)

	rr = ts.do(http.MethodGet, "/api/v1/invitations/missing-token", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReceiptScanDisabled(t *testing.T) {
	ts := newTestServer(t, 0)
	dana, _, accountID := ts.family()

	rr := ts.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/receipts/scan", dana.Token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "receipts_disabled", decode[errorBody](t, rr).Code)
}

func TestWebsocketWithoutHub(t *testing.T) {
	ts := newTestServer(t, 0)
	dana, _, accountID := ts.family()

	rr := ts.do(http.MethodGet, "/api/v1/accounts/"+accountID+"/ws", dana.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitReturns429(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		rr := ts.do(http.MethodGet, "/api/v1/invitations/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	}
	rr := ts.do(http.MethodGet, "/api/v1/invitations/nope", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, int64(1), ts.SecurityMetrics().RateLimitHits)

	// Health checks sit outside the limited group.
	rr = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
