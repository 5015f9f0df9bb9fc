package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote/memory"
)

var testNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.Local)

type recordingPublisher struct {
	events chan *amqp.PeriodEventMessage
}

func (p *recordingPublisher) PublishPeriodEvent(_ context.Context, msg *amqp.PeriodEventMessage) error {
	p.events <- msg
	return nil
}

type testServer struct {
	*Server
	remote *memory.Store
}

func newTestServer(t *testing.T, opts ...func(*Config, *Deps)) *testServer {
	t.Helper()
	rs := memory.New()
	cfg := Config{
		ManagerCacheSize:   16,
		ManagerCacheTTL:    time.Hour,
		RateLimitPerMinute: 600,
		RateLimitBurst:     1000,
	}
	deps := Deps{
		Remote:   rs,
		Accounts: identity.NewDirectory(rs, identity.WithBcryptCost(4), identity.WithDirectoryLogger(log.Discard())),
		Tokens:   identity.NewTokenManager(strings.Repeat("k", 32), "test", time.Hour, rs),
		Logger:   log.Discard(),
		Now:      func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	srv := NewServer(":0", cfg, deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, remote: rs}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
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

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "correct-horse",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tok tokenDTO
	decode(t, rr, &tok)
	if tok.Token == "" || tok.User.ID == "" {
		t.Fatalf("register returned %+v", tok)
	}
	return tok.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
	}
}

func TestReadyReportsBackendFailure(t *testing.T) {
	ts := newTestServer(t, func(_ *Config, d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("down") }
	})
	rr := ts.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	if rr := ts.do(t, http.MethodGet, "/api/auth/me", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status=%d", rr.Code)
	}

	token := ts.register(t, "Ada@Example.com")

	rr := ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status=%d", rr.Code)
	}
	var me userDTO
	decode(t, rr, &me)
	if me.Email != "ada@example.com" {
		t.Errorf("email = %q, want normalized", me.Email)
	}

	if rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "another-pass",
	}); rr.Code != http.StatusConflict {
		t.Errorf("duplicate register status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	}); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad login status=%d", rr.Code)
	}
	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct-horse",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := ts.do(t, http.MethodPost, "/api/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/auth/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked token status=%d", rr.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"weak password", map[string]string{"email": "a@b.co", "password": "short"}, http.StatusUnprocessableEntity},
		{"bad email", map[string]string{"email": "nope", "password": "long-enough"}, http.StatusUnprocessableEntity},
		{"unknown field", `{"email":"a@b.co","password":"long-enough","admin":true}`, http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == "" {
				body = nil
			}
			rr := ts.do(t, http.MethodPost, "/api/auth/register", "", body)
			if rr.Code != tt.want {
				t.Errorf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestPeriodLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "budget@example.com")

	rr := ts.do(t, http.MethodGet, "/api/periods/current", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("current status=%d", rr.Code)
	}
	var cur currentDTO
	decode(t, rr, &cur)
	if cur.Period != nil {
		t.Fatalf("expected no period, got %+v", cur.Period)
	}

	period := map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"}
	rr = ts.do(t, http.MethodPost, "/api/periods", token, period)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &cur)
	if cur.Period == nil || cur.Period.StartDate != "2025-03-01" || cur.Period.EndDate != "2025-03-31" {
		t.Fatalf("created period = %+v", cur.Period)
	}

	if rr := ts.do(t, http.MethodPost, "/api/periods", token, period); rr.Code != http.StatusConflict {
		t.Errorf("second create status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/periods/current/incomes", token,
		map[string]string{"amount": "1500,00", "category": "Salary"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add income status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = ts.do(t, http.MethodPost, "/api/periods/current/expenses", token,
		map[string]any{"amount": "800", "category": "Rent", "fixed": true})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add expense status=%d", rr.Code)
	}
	rr = ts.do(t, http.MethodPost, "/api/periods/current/expenses", token,
		map[string]any{"amount": "45.50", "category": "Food"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add variable expense status=%d", rr.Code)
	}
	var food expenseDTO
	decode(t, rr, &food)

	rr = ts.do(t, http.MethodGet, "/api/periods/current", token, nil)
	decode(t, rr, &cur)
	if cur.Period == nil {
		t.Fatal("current period missing")
	}
	if got := cur.Period.Summary.Remaining.Cents; got != 65450 {
		t.Errorf("remaining = %d, want 65450", got)
	}
	if got := cur.Period.Summary.Remaining.Formatted; got != "€654,50" {
		t.Errorf("formatted remaining = %q", got)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/periods/current/items/"+food.ID, token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodDelete, "/api/periods/current/items/"+food.ID, token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/periods/rollover", token,
		map[string]string{"startDate": "2025-04-01", "endDate": "2025-04-30"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("rollover status=%d body=%s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &cur)
	if cur.Period == nil || cur.Period.StartDate != "2025-04-01" || len(cur.Period.Incomes) != 0 {
		t.Fatalf("rollover period = %+v", cur.Period)
	}

	rr = ts.do(t, http.MethodGet, "/api/periods/history", token, nil)
	var hist historyDTO
	decode(t, rr, &hist)
	if len(hist.Periods) != 1 || hist.Periods[0].StartDate != "2025-03-01" || !hist.Periods[0].Expired {
		t.Fatalf("history = %+v", hist.Periods)
	}
	if hist.Periods[0].Summary.TotalIncome.Cents != 150000 {
		t.Errorf("archived income = %d", hist.Periods[0].Summary.TotalIncome.Cents)
	}
}

func TestExpiredPeriodIsArchivedOnRead(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "late@example.com")

	rr := ts.do(t, http.MethodPost, "/api/periods", token,
		map[string]string{"startDate": "2025-02-01", "endDate": "2025-02-28"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, "/api/periods/current", token, nil)
	var cur currentDTO
	decode(t, rr, &cur)
	if cur.Period != nil {
		t.Fatalf("expired period still current: %+v", cur.Period)
	}

	rr = ts.do(t, http.MethodGet, "/api/periods/history", token, nil)
	var hist historyDTO
	decode(t, rr, &hist)
	if len(hist.Periods) != 1 {
		t.Fatalf("history len = %d", len(hist.Periods))
	}

	// An expired period no longer blocks creating the next one.
	rr = ts.do(t, http.MethodPost, "/api/periods", token,
		map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"})
	if rr.Code != http.StatusCreated {
		t.Errorf("create after expiry status=%d", rr.Code)
	}
}

func TestConcurrentCreatesLeaveOneActivePeriod(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "twice@example.com")

	var me userDTO
	decode(t, ts.do(t, http.MethodGet, "/api/auth/me", token, nil), &me)

	const requests = 6
	codes := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := ts.do(t, http.MethodPost, "/api/periods", token,
				map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"})
			codes <- rr.Code
		}()
	}
	wg.Wait()
	close(codes)

	created, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if created != 1 || conflicts != requests-1 {
		t.Fatalf("created=%d conflicts=%d", created, conflicts)
	}

	active, err := ts.remote.Query(context.Background(), "budgetPeriods/"+me.ID, ports.Query{})
	if err != nil {
		t.Fatalf("query active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active periods = %d, want 1", len(active))
	}
}

func TestPeriodValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "v@example.com")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"start after end", "/api/periods", map[string]string{"startDate": "2025-03-31", "endDate": "2025-03-01"}, http.StatusUnprocessableEntity},
		{"bad date", "/api/periods", map[string]string{"startDate": "2025-13-01", "endDate": "2025-03-01"}, http.StatusUnprocessableEntity},
		{"income without period", "/api/periods/current/incomes", map[string]string{"amount": "10", "category": "Gift"}, http.StatusConflict},
		{"zero amount", "/api/periods/current/incomes", map[string]string{"amount": "0", "category": "Gift"}, http.StatusUnprocessableEntity},
		{"no category", "/api/periods/current/expenses", map[string]string{"amount": "10"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, tt.path, token, tt.body)
			if rr.Code != tt.want {
				t.Errorf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCurrentPeriodStoreFailure(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "down@example.com")

	ts.remote.FailOn = func(op, path string) error {
		if op == "query" && strings.HasPrefix(path, "budgetPeriods/") {
			return errors.New("offline")
		}
		return nil
	}
	rr := ts.do(t, http.MethodGet, "/api/periods/current", token, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestPeriodEventsArePublished(t *testing.T) {
	pub := &recordingPublisher{events: make(chan *amqp.PeriodEventMessage, 4)}
	ts := newTestServer(t, func(_ *Config, d *Deps) { d.Publisher = pub })
	token := ts.register(t, "events@example.com")

	rr := ts.do(t, http.MethodPost, "/api/periods", token,
		map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	select {
	case msg := <-pub.events:
		if msg.Type != amqp.PeriodCreated {
			t.Errorf("event type = %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestCategoriesAPI(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "cat@example.com")

	rr := ts.do(t, http.MethodGet, "/api/categories?type=variable_expense", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var defaults []categoryDTO
	decode(t, rr, &defaults)
	if len(defaults) == 0 || !defaults[0].Default {
		t.Fatalf("defaults = %+v", defaults)
	}

	rr = ts.do(t, http.MethodPost, "/api/categories", token, map[string]string{"name": "Climbing", "type": "variable_expense"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	var added categoryDTO
	decode(t, rr, &added)

	if rr := ts.do(t, http.MethodPost, "/api/categories", token, map[string]string{"name": "climbing", "type": "variable_expense"}); rr.Code != http.StatusConflict {
		t.Errorf("duplicate status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodDelete, "/api/categories/"+defaults[0].ID, token, nil); rr.Code != http.StatusForbidden {
		t.Errorf("delete default status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodDelete, "/api/categories/"+added.ID, token, nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete custom status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/categories?type=bogus", token, nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad type status=%d", rr.Code)
	}
}

func TestInvoicesAPI(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "inv@example.com")

	rr := ts.do(t, http.MethodPost, "/api/invoices", token,
		map[string]string{"amount": "99.90", "category": "Utilities", "expiryDate": "2025-04-10"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	var inv invoiceDTO
	decode(t, rr, &inv)

	rr = ts.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/processed", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("processed status=%d", rr.Code)
	}
	decode(t, rr, &inv)
	if !inv.Processed {
		t.Error("invoice not marked processed")
	}

	rr = ts.do(t, http.MethodGet, "/api/invoices", token, nil)
	var list []invoiceDTO
	decode(t, rr, &list)
	if len(list) != 1 || list[0].Amount.Cents != 9990 {
		t.Fatalf("list = %+v", list)
	}

	if rr := ts.do(t, http.MethodPost, "/api/invoices/missing/processed", token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown invoice status=%d", rr.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice@example.com")
	bob := ts.register(t, "bob@example.com")

	if rr := ts.do(t, http.MethodPost, "/api/periods", alice,
		map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"}); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	rr := ts.do(t, http.MethodGet, "/api/periods/current", bob, nil)
	var cur currentDTO
	decode(t, rr, &cur)
	if cur.Period != nil {
		t.Fatalf("bob sees alice's period: %+v", cur.Period)
	}
	if ts.registry.size() != 2 {
		t.Errorf("managers = %d, want 2", ts.registry.size())
	}
}

func TestEvictedManagerIsReplaced(t *testing.T) {
	ts := newTestServer(t, func(c *Config, _ *Deps) { c.ManagerCacheSize = 1 })
	alice := ts.register(t, "a1@example.com")
	bob := ts.register(t, "b1@example.com")

	ts.do(t, http.MethodPost, "/api/periods", alice, map[string]string{"startDate": "2025-03-01", "endDate": "2025-03-31"})
	ts.do(t, http.MethodGet, "/api/periods/current", bob, nil)

	rr := ts.do(t, http.MethodGet, "/api/periods/current", alice, nil)
	var cur currentDTO
	decode(t, rr, &cur)
	if cur.Period == nil {
		t.Fatal("alice's period lost after her manager was evicted")
	}
	if ts.registry.size() != 1 {
		t.Errorf("managers = %d, want 1", ts.registry.size())
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *Config, _ *Deps) {
		c.RateLimitPerMinute = 1
		c.RateLimitBurst = 1
	})
	body := map[string]string{"email": "x@example.com", "password": "short"}
	ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("reads should not be limited, status=%d", rr.Code)
	}
}
