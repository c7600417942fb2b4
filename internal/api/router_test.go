package api

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chargeback-desk/internal/dashboard"
	"github.com/example/chargeback-desk/internal/disputes"
	"github.com/example/chargeback-desk/internal/realtime"
	"github.com/example/chargeback-desk/internal/security"
	"github.com/example/chargeback-desk/internal/store"
	"github.com/example/chargeback-desk/pkg/audit"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type stubLoader struct {
	mu  sync.Mutex
	err error
}

func (l *stubLoader) Load(context.Context) (*store.LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return fixture(), nil
}

func (l *stubLoader) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func aggregate(id, merchant, amount string, status disputes.Status) disputes.Aggregate {
	txID := "t-" + id
	created := t0
	return disputes.Aggregate{
		Dispute: disputes.Dispute{
			ID:            id,
			Status:        status,
			CreatedAt:     &created,
			TransactionID: &txID,
		},
		Transaction: &disputes.Transaction{
			ID:           txID,
			MerchantName: merchant,
			Amount:       decimal.RequireFromString(amount),
			Currency:     "EUR",
		},
	}
}

func fixture() *store.LoadResult {
	filed := t0.Add(10 * time.Minute)
	pending := aggregate("d-pending", "Coffee Co", "40", disputes.StatusUnderReview)
	pending.ChargebackActions = []disputes.ChargebackAction{{ID: "a1", DisputeID: "d-pending", ChargebackFiled: true, CreatedAt: &filed}}
	pending.Representments = []disputes.RepresentmentRecord{{ID: "r1", Status: disputes.RepresentmentPending}}

	return &store.LoadResult{
		LoadedAt: t0,
		Aggregates: []disputes.Aggregate{
			aggregate("d-open-b", "bakery", "30", disputes.StatusStarted),
			aggregate("d-open-a", "Airline", "300", disputes.StatusInProgress),
			pending,
			aggregate("d-done", "Grocer", "5", disputes.StatusCompleted),
			{Dispute: disputes.Dispute{ID: "d-draft", Status: disputes.StatusStarted}},
		},
	}
}

type auditSpy struct {
	mu      sync.Mutex
	records []audit.Access
}

func (a *auditSpy) Record(_ context.Context, access audit.Access) (*audit.LogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, access)
	return &audit.LogEntry{Sequence: uint64(len(a.records))}, nil
}

func (a *auditSpy) last() audit.Access {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[len(a.records)-1]
}

type testEnv struct {
	deps   Dependencies
	svc    *dashboard.Service
	loader *stubLoader
	audit  *auditSpy
	redis  *redis.Client
}

func newTestEnv(t *testing.T, load bool) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	loader := &stubLoader{}
	svc := dashboard.NewService(loader, dashboard.NewRedisViewCache(rdb, time.Minute), nil)
	if load {
		require.NoError(t, svc.Refresh(context.Background(), realtime.NewSignal(realtime.OriginInitial, "")))
	}

	spy := &auditSpy{}
	return &testEnv{
		deps: Dependencies{
			Dashboard:    svc,
			Refresher:    svc,
			Auditor:      spy,
			RateLimiter:  &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 100, RefillRate: 100},
			MaxBodyBytes: 1 << 20,
		},
		svc:    svc,
		loader: loader,
		audit:  spy,
		redis:  rdb,
	}
}

func (e *testEnv) server(t *testing.T) *httptest.Server {
	t.Helper()
	h, err := NewRouter(e.deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type viewBody struct {
	Generation uint64 `json:"generation"`
	Total      int    `json:"total"`
	Rows       []struct {
		ID     string `json:"id"`
		Bucket string `json:"bucket"`
		Color  string `json:"color"`
	} `json:"rows"`
}

func (v viewBody) ids() []string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.ID
	}
	return out
}

func TestListDisputes(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/v1/disputes?bucket=in_progress&sort=transaction.amount&direction=desc")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(security.CorrelationIDHeader))

	view := decode[viewBody](t, resp)
	assert.EqualValues(t, 1, view.Generation)
	assert.Equal(t, []string{"d-open-a", "d-open-b"}, view.ids())
	assert.Equal(t, "blue", view.Rows[0].Color)

	resp, err = http.Get(ts.URL + "/v1/disputes")
	require.NoError(t, err)
	all := decode[viewBody](t, resp)
	assert.Equal(t, 4, all.Total, "drafts without a transaction stay hidden")
}

func TestListDisputes_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	for _, query := range []string{
		"bucket=open",
		"amount_min=lots",
		"date_from=yesterday",
		"settled=maybe",
		"sort=amount&direction=up",
	} {
		resp, err := http.Get(ts.URL + "/v1/disputes?" + query)
		require.NoError(t, err)
		body := decode[security.ErrorResponse](t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
		assert.Equal(t, "invalid_query", body.Error, query)
		assert.NotEmpty(t, body.Detail, query)
	}
}

func TestNotLoadedReturns503(t *testing.T) {
	env := newTestEnv(t, false)
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/v1/disputes/counts")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	body := decode[security.ErrorResponse](t, resp)
	assert.Equal(t, "snapshot_not_loaded", body.Error)
	assert.NotEmpty(t, body.CorrelationID)
}

func TestSearchDisputes(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+"/v1/disputes/search", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"bucket":"in_progress","filter":{"merchant_name":"air","amount_min":100,"settled":false}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"d-open-a"}, decode[viewBody](t, resp).ids())

	resp = post(`{"sort":{"field":"transaction.merchant_name","direction":"asc"},"filter":{"amount_max":"50"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"d-open-b", "d-pending", "d-done"}, decode[viewBody](t, resp).ids())

	for body, code := range map[string]string{
		`{"bucket":"open"}`:                     "validation_error",
		`{"page":2}`:                            "validation_error",
		`{"filter":{"amount_min":"ten"}}`:       "validation_error",
		`{"filter":{"date_from":"2024-13-45"}}`: "invalid_query",
		`{"bucket":`:                            "invalid_json",
	} {
		resp := post(body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, code, decode[security.ErrorResponse](t, resp).Error, body)
	}
}

func TestCounts(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/v1/disputes/counts")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	counts := decode[dashboard.Counts](t, resp)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, map[disputes.Bucket]int{
		disputes.BucketInProgress:       2,
		disputes.BucketNeedsAttention:   1,
		disputes.BucketAwaitingCustomer: 0,
		disputes.BucketDone:             1,
		disputes.BucketVoid:             0,
	}, counts.Buckets)
}

func TestActivities(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/v1/disputes/d-pending/activities")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[dashboard.History](t, resp)
	assert.Equal(t, "d-pending", history.DisputeID)
	assert.Equal(t, disputes.BucketNeedsAttention, history.Bucket)
	assert.NotEmpty(t, history.Activities)
	assert.NotEmpty(t, history.CurrentLabel)

	for _, id := range []string{"d-draft", "missing"} {
		resp, err := http.Get(ts.URL + "/v1/disputes/" + id + "/activities")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, id)
		assert.Equal(t, "dispute_not_found", decode[security.ErrorResponse](t, resp).Error, id)
	}
}

func TestNextSort(t *testing.T) {
	env := newTestEnv(t, false)
	ts := env.server(t)

	tests := []struct {
		query string
		want  disputes.SortState
	}{
		{"field=amount", disputes.SortState{Field: "amount", Direction: disputes.DirectionAsc}},
		{"field=amount&current_field=amount&current_direction=asc", disputes.SortState{Field: "amount", Direction: disputes.DirectionDesc}},
		{"field=amount&current_field=amount&current_direction=desc", disputes.SortState{}},
		{"field=currency&current_field=amount&current_direction=desc", disputes.SortState{Field: "currency", Direction: disputes.DirectionAsc}},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + "/v1/sort/next?" + tt.query)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, tt.query)
		assert.Equal(t, tt.want, decode[disputes.SortState](t, resp), tt.query)
	}

	resp, err := http.Get(ts.URL + "/v1/sort/next?field=amount&current_direction=sideways")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	resp, err := http.Post(ts.URL+"/v1/refresh", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[refreshResponse](t, resp)
	assert.EqualValues(t, 2, body.Generation)
	assert.Equal(t, 5, body.Disputes)
	assert.NotEmpty(t, body.TriggerID)

	snap, err := env.svc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, realtime.OriginManual, snap.Trigger.Origin)

	env.loader.fail(errors.New("database unreachable"))
	resp, err = http.Post(ts.URL+"/v1/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	snap, err = env.svc.Snapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Generation, "failed refresh keeps the published snapshot")
}

func TestRouter_FallbackHandlers(t *testing.T) {
	env := newTestEnv(t, true)
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/v2/disputes")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[security.ErrorResponse](t, resp).Error)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/disputes/counts", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestRateLimitTrips(t *testing.T) {
	env := newTestEnv(t, true)
	env.deps.RateLimiter.Capacity = 1
	env.deps.RateLimiter.RefillRate = 0.0000001
	ts := env.server(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, true)
	env.deps.MaxBodyBytes = 32
	ts := env.server(t)

	body := `{"bucket":"in_progress","filter":{"merchant_name":"a very long merchant"}}`
	resp, err := http.Post(ts.URL+"/v1/disputes/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}

func TestAuditChainOverRedis(t *testing.T) {
	env := newTestEnv(t, true)
	sink := audit.NewRedisSink(env.redis, "audit:test")
	env.deps.Auditor = audit.NewChainLogger(sink)
	ts := env.server(t)

	for _, path := range []string{"/v1/disputes", "/v1/disputes/counts", "/v1/disputes/missing/activities", "/healthz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	entries, err := sink.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3, "only /v1 reads are audited")
	assert.True(t, audit.VerifyChain(entries))

	var last audit.Access
	require.NoError(t, json.Unmarshal([]byte(entries[2].Payload), &last))
	assert.Equal(t, "/v1/disputes/missing/activities", last.Path)
	assert.Equal(t, http.StatusNotFound, last.Status)
	assert.NotEmpty(t, last.CorrelationID)
}

func TestMTLSRequired(t *testing.T) {
	env := newTestEnv(t, true)
	certs := generateMTLSCerts(t)

	h, err := NewRouter(env.deps)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(h)
	ts.TLS = certs.serverTLS
	ts.StartTLS()
	defer ts.Close()

	clientNoCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.noClientTLS}}
	_, err = clientNoCert.Get(ts.URL + "/healthz")
	require.Error(t, err)

	clientWithCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.clientTLS}}
	resp, err := clientWithCert.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = clientWithCert.Get(ts.URL + "/v1/disputes/counts")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "back-office", env.audit.last().Client)
}

type testCerts struct {
	serverTLS   *tls.Config
	clientTLS   *tls.Config
	noClientTLS *tls.Config
}

func generateMTLSCerts(t *testing.T) *testCerts {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	caPool := x509.NewCertPool()
	caPool.AddCert(caCert)

	serverCert := signCert(t, caCert, caKey, "dashboard", []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, []net.IP{net.ParseIP("127.0.0.1")})
	clientCert := signCert(t, caCert, caKey, "back-office", []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, nil)

	return &testCerts{
		serverTLS: &tls.Config{
			Certificates: []tls.Certificate{serverCert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    caPool,
			MinVersion:   tls.VersionTLS13,
		},
		clientTLS: &tls.Config{
			Certificates: []tls.Certificate{clientCert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS13,
		},
		noClientTLS: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS13,
		},
	}
}

func signCert(t *testing.T, ca *x509.Certificate, caKey *ecdsa.PrivateKey, cn string, eku []x509.ExtKeyUsage, ips []net.IP) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  eku,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	c, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return c
}
