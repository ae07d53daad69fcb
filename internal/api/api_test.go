package api

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"kellyq/internal/domain"
	"kellyq/internal/pipeline"
	"kellyq/internal/source"
	"kellyq/internal/store"
	"kellyq/pkg/kellyq"
)

func prices(n int) []domain.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PricePoint, n)
	px := 100.0
	for i := range out {
		out[i] = domain.PricePoint{Date: start.AddDate(0, 0, i), Close: px}
		px *= 1 + 0.002 + 0.015*math.Sin(1.3*float64(i))
	}
	return out
}

type fixture struct {
	svc    *Service
	curves *store.ParquetStore
	runs   *store.SQLiteStore
}

func newFixture(t *testing.T, persist bool) *fixture {
	t.Helper()
	src := source.NewMemorySource()
	src.Set("ETH", prices(60))
	src.Set("BTC", prices(10))

	f := &fixture{}
	runner := pipeline.NewRunner(src, pipeline.Options{Window: 25, MaxWorkers: 2}, nil)
	var curves store.CurveStore
	var runs store.RunStore
	if persist {
		dir := t.TempDir()
		f.curves = store.NewParquetStore(dir)
		db, err := store.NewSQLiteStore(filepath.Join(dir, "kellyq.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		f.runs = db
		curves, runs = f.curves, f.runs
		runner.WithStores(curves, runs)
	}
	f.svc = NewService(runner, []string{"ETH", "BTC", "SOL"}, curves, runs, 10, 20, nil)
	return f
}

func getJSON(t *testing.T, h http.Handler, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil && rec.Code/100 == 2 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHTTPBeforeFirstRun(t *testing.T) {
	h := newFixture(t, false).svc.Handler()

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "GET", "/api/scores", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "GET", "/api/summary", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "GET", "/api/curves/ETH", nil))

	var runs kellyq.RunsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/runs", &runs))
	assert.Empty(t, runs.Runs)
}

func TestHTTPRunAndQuery(t *testing.T) {
	f := newFixture(t, false)
	h := f.svc.Handler()

	var run kellyq.ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "POST", "/api/run", &run))
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 25, run.Window)
	assert.NotNil(t, run.Scores["ETH"])
	assert.NotNil(t, run.Scores["ETH_kelly"])
	assert.Nil(t, run.Scores["BTC_kelly"], "no leveraged returns for a short series")
	assert.Contains(t, run.Failed, "SOL")

	var scores kellyq.ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/scores", &scores))
	assert.Equal(t, run.RunID, scores.RunID)
	assert.Equal(t, *run.Scores["ETH"], *scores.Scores["ETH"])

	var curve kellyq.CurveResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/curves/eth", &curve))
	assert.Equal(t, "ETH", curve.Symbol)
	require.Len(t, curve.Rows, 60-1-25)
	assert.Nil(t, curve.Rows[0].MAShort)
	assert.NotNil(t, curve.Rows[9].MAShort)
	assert.Nil(t, curve.Rows[18].MALong)
	assert.NotNil(t, curve.Rows[19].MALong)

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "GET", "/api/curves/SOL", nil))

	var sum kellyq.SummaryResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/summary", &sum))
	require.Len(t, sum.Summaries, 2)
	assert.Equal(t, "BTC", sum.Summaries[0].Symbol)
	assert.Nil(t, sum.Summaries[0].KellyMean)
	assert.Equal(t, "ETH", sum.Summaries[1].Symbol)
	assert.NotNil(t, sum.Summaries[1].KellyMean)

	var runs kellyq.RunsResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/runs", &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, []string{"SOL"}, runs.Runs[0].Failed)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, h, "GET", "/api/runs?limit=zero", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "GET", "/api/scores?run=unknown", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, h, "GET", "/api/run", nil))
}

func TestHTTPPersistedFallback(t *testing.T) {
	f := newFixture(t, true)
	h := f.svc.Handler()

	var first kellyq.ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "POST", "/api/run", &first))
	var second kellyq.ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "POST", "/api/run", &second))
	require.NotEqual(t, first.RunID, second.RunID)

	// An older run is answered from SQLite.
	var old kellyq.ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/scores?run="+first.RunID, &old))
	assert.Equal(t, first.RunID, old.RunID)
	assert.Equal(t, *first.Scores["ETH"], *old.Scores["ETH"])
	assert.Nil(t, old.Scores["BTC_kelly"])

	var runs kellyq.RunsResponse
	require.Equal(t, http.StatusOK, getJSON(t, h, "GET", "/api/runs?limit=5", &runs))
	assert.Len(t, runs.Runs, 2)

	// A fresh service with no in-memory result reads curves from Parquet.
	cold := NewService(nil, nil, f.curves, f.runs, 10, 20, nil)
	var curve kellyq.CurveResponse
	require.Equal(t, http.StatusOK, getJSON(t, cold.Handler(), "GET", "/api/curves/ETH", &curve))
	assert.Len(t, curve.Rows, 60-1-25)
	assert.Equal(t, 10, curve.ShortMA)
}

func TestRunsWithoutRunStore(t *testing.T) {
	svc := newFixture(t, false).svc
	ctx := context.Background()

	runs, err := svc.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	res, err := svc.Refresh(ctx)
	require.NoError(t, err)

	runs, err = svc.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.ID, runs[0].ID)
	assert.Equal(t, res.FailedSymbols(), runs[0].Failed)
}

func TestRefreshRejectsOverlap(t *testing.T) {
	svc := newFixture(t, false).svc
	svc.running.Store(true)
	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, http.StatusConflict, statusFor(err))
}

func TestCORSPreflight(t *testing.T) {
	h := newFixture(t, false).svc.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/scores", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialBuf(t *testing.T, svc *Service) *ReportClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewGRPCServer(svc).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewReportClient(conn)
}

func TestGRPCReport(t *testing.T) {
	svc := newFixture(t, false).svc
	client := dialBuf(t, svc)
	ctx := context.Background()

	_, _, err := client.Scores(ctx, "")
	assert.Equal(t, codes.NotFound, status.Code(err))

	res, err := svc.Refresh(ctx)
	require.NoError(t, err)

	id, scores, err := client.Scores(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, res.ID, id)
	assert.Equal(t, res.Scores["ETH"], scores["ETH"])
	assert.True(t, math.IsNaN(scores["BTC_kelly"]))
	assert.Equal(t, SortedKeys(res.Scores), SortedKeys(scores))

	rows, err := client.Curve(ctx, "eth")
	require.NoError(t, err)
	require.Len(t, rows, 60-1-25)
	tbl := res.Tables["ETH"]
	assert.Equal(t, tbl.Rows[3].Growth, rows[3].Growth)
	assert.Equal(t, tbl.Rows[3].Date.Format(time.RFC3339), rows[3].Date)
	assert.True(t, math.IsNaN(rows[0].MAShort))

	_, err = client.Curve(ctx, "DOGE")
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = client.Curve(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServerServeAndShutdown(t *testing.T) {
	svc := newFixture(t, false).svc
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(svc, httpLn.Addr().String(), grpcLn.Addr().String(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, httpLn, grpcLn) }()

	client := kellyq.NewClient("http://" + httpLn.Addr().String())
	require.Eventually(t, func() bool {
		_, err := client.Trigger(context.Background())
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	got, err := client.Scores(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, got.RunID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
