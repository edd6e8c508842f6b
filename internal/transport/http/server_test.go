package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"quantgate/internal/gate"
	"quantgate/internal/scan"
	exitstrategy "quantgate/internal/strategy/exit"
)

var errNotFound = errors.New("not found")

type fakeStore struct {
	latest []scan.ScanResult
	byDate map[string][]scan.ScanResult
	evals  map[string][]gate.Evaluation
}

func (f *fakeStore) LatestScanResults(context.Context) ([]scan.ScanResult, error) {
	if len(f.latest) == 0 {
		return nil, errNotFound
	}
	return f.latest, nil
}

func (f *fakeStore) ScanResultsByDate(_ context.Context, date time.Time) ([]scan.ScanResult, error) {
	return f.byDate[date.Format("2006-01-02")], nil
}

func (f *fakeStore) EvaluationsByTicker(_ context.Context, ticker string, _ int) ([]gate.Evaluation, error) {
	return f.evals[ticker], nil
}

func newTestServer(t *testing.T, store ResultStore, exits *exitstrategy.Manager) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Store: store, Exits: exits, NotFound: errNotFound})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil)
	w := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLatestScan(t *testing.T) {
	store := &fakeStore{latest: []scan.ScanResult{
		{ID: "01A", Ticker: "AAA", PriorityScore: 82, Rank: 1},
	}}
	srv := newTestServer(t, store, nil)

	w := get(t, srv, "/api/scan/latest")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "AAA", gjson.Get(body, "results.0.ticker").String())
	assert.Equal(t, int64(1), gjson.Get(body, "results.0.rank").Int())
}

func TestLatestScanEmptyIs404(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil)
	w := get(t, srv, "/api/scan/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanByDateRejectsBadDate(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil)
	w := get(t, srv, "/api/scan/03-02-2026")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluationsByTicker(t *testing.T) {
	store := &fakeStore{evals: map[string][]gate.Evaluation{
		"AAA": {{ID: "e1", Ticker: "AAA", Decision: gate.DecisionBuy, Confidence: 71}},
	}}
	srv := newTestServer(t, store, nil)

	w := get(t, srv, "/api/evaluations/aaa")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BUY", gjson.Get(w.Body.String(), "evaluations.0.decision").String())
}

func TestExitPlanEndpoint(t *testing.T) {
	exits := exitstrategy.NewManager(exitstrategy.Config{}, nil)
	require.NoError(t, exits.Open(context.Background(), "AAA", 100, time.Now()))
	srv := newTestServer(t, &fakeStore{}, exits)

	w := get(t, srv, "/api/positions/AAA/exitplan")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 92.0, gjson.Get(w.Body.String(), "trailing_stop_price").Float(), 1e-9)

	w = get(t, srv, "/api/positions/ZZZ/exitplan")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
