package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"kellyq/internal/pipeline"
	"kellyq/internal/report"
	"kellyq/internal/store"
	"kellyq/pkg/kellyq"
)

// RegisterRoutes registers all API routes on the given mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/scores", s.handleScores)
	mux.HandleFunc("GET /api/curves/{symbol}", s.handleCurve)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
}

// Handler returns an http.Handler with CORS middleware.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(kellyq.ErrorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoRun), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNoSymbols):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) handleScores(w http.ResponseWriter, r *http.Request) {
	runID, scores, err := s.Scores(r.Context(), r.URL.Query().Get("run"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := kellyq.ScoresResponse{RunID: runID, Scores: kellyq.Floats(scores)}
	if latest, err := s.Latest(); err == nil && latest.ID == runID {
		resp = scoresResponse(latest)
	}
	writeJSON(w, resp)
}

func (s *Service) handleCurve(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.Curve(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, curveResponse(tbl))
}

func (s *Service) handleSummary(w http.ResponseWriter, _ *http.Request) {
	res, err := s.Latest()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := kellyq.SummaryResponse{RunID: res.ID, Summaries: make([]kellyq.Summary, 0, len(res.Summaries))}
	for _, sum := range res.Summaries {
		resp.Summaries = append(resp.Summaries, summaryJSON(sum))
	}
	sort.Slice(resp.Summaries, func(i, j int) bool {
		return resp.Summaries[i].Symbol < resp.Summaries[j].Symbol
	})
	writeJSON(w, resp)
}

func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := kellyq.RunsResponse{Runs: make([]kellyq.Run, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, kellyq.Run{
			ID:       run.ID,
			Started:  run.Started,
			Finished: run.Finished,
			Window:   run.Window,
			Symbols:  run.Symbols,
			Failed:   run.Failed,
			Scores:   kellyq.Floats(run.Scores),
		})
	}
	writeJSON(w, resp)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.Refresh(r.Context())
	if err != nil {
		s.log.Error("refresh failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, scoresResponse(res))
}

// ---------------------------------------------------------------------------
// Wire conversion
// ---------------------------------------------------------------------------

func scoresResponse(res *pipeline.Result) kellyq.ScoresResponse {
	resp := kellyq.ScoresResponse{
		RunID:   res.ID,
		Started: res.Started,
		Window:  res.Window,
		Scores:  kellyq.Floats(res.Scores),
	}
	if len(res.Skipped) > 0 {
		resp.Skipped = res.Skipped
	}
	if len(res.Failed) > 0 {
		resp.Failed = make(map[string]string, len(res.Failed))
		for sym, err := range res.Failed {
			resp.Failed[sym] = err.Error()
		}
	}
	return resp
}

func curveResponse(tbl report.Table) kellyq.CurveResponse {
	resp := kellyq.CurveResponse{
		Symbol:  tbl.Symbol,
		ShortMA: tbl.ShortMA,
		LongMA:  tbl.LongMA,
		Rows:    make([]kellyq.CurveRow, len(tbl.Rows)),
	}
	for i, r := range tbl.Rows {
		resp.Rows[i] = kellyq.CurveRow{
			Date:     r.Date,
			Close:    r.Close,
			Growth:   r.Growth,
			Fraction: r.Fraction,
			MAShort:  kellyq.Float(r.MAShort),
			MALong:   kellyq.Float(r.MALong),
		}
	}
	return resp
}

func summaryJSON(s report.Summary) kellyq.Summary {
	return kellyq.Summary{
		Symbol:      s.Symbol,
		Rows:        s.Rows,
		KellyMean:   kellyq.Float(s.KellyMean),
		CloseMean:   kellyq.Float(s.CloseMean),
		KellyLow:    kellyq.Float(s.KellyLow),
		KellyHigh:   kellyq.Float(s.KellyHigh),
		LastKelly:   kellyq.Float(s.LastKelly),
		LastClose:   kellyq.Float(s.LastClose),
		Correlation: kellyq.Float(s.Correlation),
	}
}
