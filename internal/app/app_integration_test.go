//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
	"github.com/xenking/pos-backoffice/internal/events"
	"github.com/xenking/pos-backoffice/internal/storage/postgres"
	"github.com/xenking/pos-backoffice/pkg/health"
)

const (
	testPepper = "integration-test-pepper"
	testAPIKey = "integration-cashier-key"
)

var (
	baseURL    string
	httpClient *http.Client
	catalogDB  *postgres.CatalogStore
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// Response types are defined locally so the suite only sees the wire format.

type envelope[T any] struct {
	Success    bool   `json:"success"`
	Data       T      `json:"data"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type orderResponse struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"orderNumber"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	RefundedAmount decimal.Decimal `json:"refundedAmount"`
	Change         decimal.Decimal `json:"change"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"paymentStatus"`
	Cashier        struct {
		ID string `json:"id"`
	} `json:"cashier"`
}

type pageResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	decimal.MarshalJSONWithoutQuotes = true

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("pos"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = ctr.Terminate(context.Background()) }()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	catalogDB = postgres.NewCatalogStore(pool)
	if err := seed(ctx, pool); err != nil {
		log.Fatalf("seed: %v", err)
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))
	healthSvc.SetReady(true)

	cfg := &Config{
		APIKeyPepper: testPepper,
		Timezone:     "UTC",
		RateLimit:    RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:         CORSConfig{Origins: []string{"*"}},
	}
	h, err := newRouter(ctx, cfg, time.UTC, wiring{
		pool:      pool,
		settings:  postgres.NewSettingsStore(pool),
		publisher: events.Nop{},
		health:    healthSvc,
		tracer:    tracenoop.NewTracerProvider(),
		meter:     metricnoop.NewMeterProvider(),
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	baseURL = srv.URL
	httpClient = &http.Client{Timeout: 10 * time.Second}

	return m.Run()
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	if err := catalogDB.UpsertCategory(ctx, catalog.Category{ID: "drinks", Name: "Drinks"}); err != nil {
		return err
	}
	now := time.Now()
	for _, p := range []catalog.Product{
		{ID: "latte", Name: "Latte", SKU: "DRK-001", CategoryID: "drinks", Price: decimal.NewFromInt(300),
			Cost: decimal.NewFromInt(100), Stock: 50, LowStockAlert: 5, TrackInventory: true, IsActive: true, CreatedAt: now},
		{ID: "tea", Name: "Tea", SKU: "DRK-002", CategoryID: "drinks", Price: decimal.NewFromInt(150),
			Cost: decimal.NewFromInt(30), Stock: 2, LowStockAlert: 1, TrackInventory: true, IsActive: true, CreatedAt: now},
	} {
		if err := catalogDB.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return postgres.NewStaffStore(pool).UpsertStaff(ctx, staff.Member{
		ID:      "cashier-1",
		Name:    "Wanjiru",
		Role:    staff.RoleCashier,
		KeyHash: staff.HashKey([]byte(testPepper), testAPIKey),
		Active:  true,
	})
}

// HTTP helpers.

func doRequest(t *testing.T, method, path string, body any, apiKey string) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func placeOrder(t *testing.T, body map[string]any) orderResponse {
	t.Helper()

	resp := doRequest(t, http.MethodPost, "/api/orders", body, testAPIKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decodeJSON[envelope[orderResponse]](t, resp)
	require.True(t, env.Success)
	return env.Data
}

func stockOf(t *testing.T, id string) int {
	t.Helper()

	p, err := catalogDB.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestProbes(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, path, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "ok", decodeJSON[healthResponse](t, resp).Status)
		})
	}
}

func TestRequestID(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/livez", nil, "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "custom-request-id-12345")
	echoed, err := httpClient.Do(req)
	require.NoError(t, err)
	defer echoed.Body.Close()
	assert.Equal(t, "custom-request-id-12345", echoed.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, baseURL+"/api/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestRateLimitHeaders(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/orders", nil, testAPIKey)
	assert.Equal(t, "1000", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}

func TestMetricsEndpoint(t *testing.T) {
	doRequest(t, http.MethodGet, "/livez", nil, "")

	resp := doRequest(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pos_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
	}{
		{name: "Missing"},
		{name: "Unknown", key: "wrong-key"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, "/api/orders", nil, tc.key)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			env := decodeJSON[envelope[json.RawMessage]](t, resp)
			assert.False(t, env.Success)
			assert.Equal(t, http.StatusUnauthorized, env.StatusCode)
		})
	}
}

func TestCheckoutErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		body   map[string]any
		status int
	}{
		{
			name:   "EmptyCart",
			body:   map[string]any{"items": []any{}, "paymentMethod": "cash", "amountPaid": 100},
			status: http.StatusBadRequest,
		},
		{
			name: "UnknownProduct",
			body: map[string]any{
				"items":   []any{map[string]any{"productId": "espresso", "quantity": 1}},
				"payment": map[string]any{"method": "cash", "amount": 1000},
			},
			status: http.StatusNotFound,
		},
		{
			name: "InsufficientStock",
			body: map[string]any{
				"items":   []any{map[string]any{"productId": "tea", "quantity": 3}},
				"payment": map[string]any{"method": "cash", "amount": 1000},
			},
			status: http.StatusConflict,
		},
		{
			name: "Underpaid",
			body: map[string]any{
				"items":     []any{map[string]any{"productId": "latte", "quantity": 1}},
				"payment":   map[string]any{"method": "cash", "amount": 100},
				"isTaxable": false,
			},
			status: http.StatusPaymentRequired,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, "/api/orders", tc.body, testAPIKey)
			require.Equal(t, tc.status, resp.StatusCode)
			assert.False(t, decodeJSON[envelope[json.RawMessage]](t, resp).Success)
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	before := stockOf(t, "latte")

	o := placeOrder(t, map[string]any{
		"items":     []any{map[string]any{"productId": "latte", "quantity": 2}},
		"payment":   map[string]any{"method": "cash", "amount": 1000},
		"isTaxable": false,
	})
	assert.Regexp(t, orderNumberPattern, o.OrderNumber)
	assert.True(t, decimal.NewFromInt(600).Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.True(t, decimal.NewFromInt(400).Equal(o.Change), "change %s", o.Change)
	assert.Equal(t, "completed", o.Status)
	assert.Equal(t, "paid", o.PaymentStatus)
	assert.Equal(t, "cashier-1", o.Cashier.ID)
	assert.Equal(t, before-2, stockOf(t, "latte"))

	t.Run("GetByNumber", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/orders/"+o.OrderNumber, nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, o.ID, decodeJSON[envelope[orderResponse]](t, resp).Data.ID)
	})

	t.Run("UnknownStaff", func(t *testing.T) {
		resp := doRequest(t, http.MethodPatch, "/api/orders/"+o.ID+"/status",
			map[string]any{"status": "ready", "preparedBy": "nobody"}, testAPIKey)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, decodeJSON[envelope[json.RawMessage]](t, resp).Success)

		resp = doRequest(t, http.MethodGet, "/api/orders/"+o.ID, nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "completed", decodeJSON[envelope[orderResponse]](t, resp).Data.Status)
	})

	t.Run("Cancel", func(t *testing.T) {
		resp := doRequest(t, http.MethodPatch, "/api/orders/"+o.ID+"/status",
			map[string]any{"status": "cancelled"}, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeJSON[envelope[orderResponse]](t, resp).Data
		assert.Equal(t, "cancelled", got.Status)
		assert.Equal(t, "refunded", got.PaymentStatus)
		assert.Equal(t, before, stockOf(t, "latte"))
	})

	t.Run("RefundCancelled", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, "/api/orders/"+o.ID+"/refund", map[string]any{}, testAPIKey)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestPartialRefund(t *testing.T) {
	o := placeOrder(t, map[string]any{
		"items":         []any{map[string]any{"productId": "latte", "quantity": 1}},
		"paymentMethod": "card",
		"amountPaid":    300,
		"isTaxable":     false,
	})
	before := stockOf(t, "latte")

	resp := doRequest(t, http.MethodPost, "/api/orders/"+o.ID+"/refund",
		map[string]any{"amount": 500}, testAPIKey)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, "/api/orders/"+o.ID+"/refund",
		map[string]any{"amount": 100, "reason": "cold coffee"}, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[envelope[orderResponse]](t, resp).Data
	assert.Equal(t, "refunded", got.Status)
	assert.Equal(t, "partially_paid", got.PaymentStatus)
	assert.True(t, decimal.NewFromInt(100).Equal(got.RefundedAmount))
	assert.Equal(t, before+1, stockOf(t, "latte"))
}

func TestListOrders(t *testing.T) {
	placeOrder(t, map[string]any{
		"items":     []any{map[string]any{"productId": "latte", "quantity": 1}},
		"payment":   map[string]any{"method": "mobile_money", "amount": 300, "transactionId": "MP-42"},
		"isTaxable": false,
	})

	resp := doRequest(t, http.MethodGet, "/api/orders?cashierId=cashier-1&limit=1", nil, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeJSON[envelope[pageResponse]](t, resp).Data
	assert.Len(t, page.Orders, 1)
	assert.GreaterOrEqual(t, page.Total, 1)
}

func TestStatsAndSummary(t *testing.T) {
	for _, path := range []string{"/api/orders/stats?period=today", "/api/orders/today"} {
		t.Run(path, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, path, nil, testAPIKey)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, decodeJSON[envelope[json.RawMessage]](t, resp).Success)
		})
	}
}

func TestReports(t *testing.T) {
	t.Run("Generate", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/reports/sales?period=today", nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeJSON[envelope[struct {
			Type   string `json:"type"`
			Period string `json:"period"`
		}]](t, resp)
		assert.Equal(t, "sales", env.Data.Type)
		assert.Equal(t, "today", env.Data.Period)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/reports/weather", nil, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ExportCSV", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/reports/inventory/export?format=csv", nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), `attachment; filename="inventory-`))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "Latte")
	})
}
