// Package server exposes the webhook endpoint and the read/admin API.
// The webhook responds as soon as the call is durably stored; scoring
// happens asynchronously, outside the request path.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"call-scoring-go/internal/aggregate"
	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/dataset"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/registry"
	"call-scoring-go/internal/scoring"
	"call-scoring-go/internal/secrets"
	"call-scoring-go/internal/store"
	"call-scoring-go/internal/types"
	"call-scoring-go/internal/webhook"
)

type Server struct {
	Calls       *store.CallRepository
	Scores      *store.ScoreRepository
	Metrics     *store.AgentMetricRepository
	Credentials *store.CredentialRepository
	Registry    *registry.Registry
	Engine      *scoring.Engine
	Aggregator  *aggregate.Service
	Encryptor   *secrets.Encryptor
}

// Mux builds the route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Debug("health check")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /calls", s.handleListCalls)
	mux.HandleFunc("GET /calls/{id}/scores", s.handleCallScores)
	mux.HandleFunc("GET /agents/metrics", s.handleAgentMetrics)
	mux.HandleFunc("GET /kpi/aggregates", s.handleKPIAggregates)
	mux.HandleFunc("GET /scores/errored", s.handleErroredScores)

	mux.HandleFunc("POST /dashboard-types", s.handleCreateDashboardType)
	mux.HandleFunc("POST /llm-profiles", s.handleActivateProfile)
	mux.HandleFunc("POST /credentials", s.handleSetCredential)
	mux.HandleFunc("POST /scores/reprocess", s.handleReprocess)
	mux.HandleFunc("POST /aggregates/recompute", s.handleRecompute)
	mux.HandleFunc("POST /import", s.handleImport)

	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "webhook")

	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		companyID = r.Header.Get("X-Company-ID")
	}
	if companyID == "" {
		http.Error(w, "missing company_id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	call, err := webhook.Normalize(companyID, body)
	if err != nil {
		reqLog.WithError(err).Warn("payload rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	stored, created, err := s.Calls.Create(r.Context(), call)
	if err != nil {
		reqLog.WithError(err).Error("store call failed")
		http.Error(w, "store call", http.StatusInternalServerError)
		return
	}
	reqLog = reqLog.WithField("call_id", stored.ID).WithField("created", created)
	reqLog.Info("call ingested")

	// scoring runs off the request path, drawing on the engine's
	// bounded pool; the periodic scan also re-covers this call if the
	// process dies first
	if created {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := s.Engine.ScoreCall(ctx, stored); err != nil {
				reqLog.WithError(err).Error("async scoring failed")
			}
		}()
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"call_id": stored.ID,
		"created": created,
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := store.ListFilter{
		AgentID:      q.Get("agent_id"),
		CampaignType: q.Get("campaign_type"),
		From:         parseTime(q.Get("from")),
		To:           parseTime(q.Get("to")),
		Limit:        limit,
	}
	calls, err := s.Calls.List(r.Context(), companyID, filter)
	if err != nil {
		logger.New().WithRequest(r).WithError(err).Error("list calls failed")
		http.Error(w, "list calls", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleCallScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.Scores.ListForCall(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "list scores", http.StatusInternalServerError)
		return
	}
	// unscored calls read as an empty list, "no KPI data yet"
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	metrics, err := s.Metrics.ListByCompany(r.Context(), companyID)
	if err != nil {
		http.Error(w, "list agent metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// KPIAggregate is the read-API rollup of one dashboard type's scores.
type KPIAggregate struct {
	DashboardTypeID string             `json:"dashboard_type_id"`
	ScoredCalls     int                `json:"scored_calls"`
	AverageOverall  float64            `json:"average_overall"`
	AverageByKey    map[string]float64 `json:"average_by_key"`
}

func (s *Server) handleKPIAggregates(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	dtID := r.URL.Query().Get("dashboard_type_id")
	if dtID == "" {
		http.Error(w, "missing dashboard_type_id", http.StatusBadRequest)
		return
	}
	rows, err := s.Scores.ListScored(r.Context(), companyID, dtID,
		parseTime(r.URL.Query().Get("from")), parseTime(r.URL.Query().Get("to")))
	if err != nil {
		http.Error(w, "list scores", http.StatusInternalServerError)
		return
	}

	agg := KPIAggregate{DashboardTypeID: dtID, ScoredCalls: len(rows), AverageByKey: map[string]float64{}}
	keyCounts := map[string]int{}
	for _, row := range rows {
		agg.AverageOverall += row.OverallScore
		for k, v := range row.Scores {
			agg.AverageByKey[k] += v
			keyCounts[k]++
		}
	}
	if len(rows) > 0 {
		agg.AverageOverall /= float64(len(rows))
	}
	for k, n := range keyCounts {
		agg.AverageByKey[k] /= float64(n)
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleErroredScores(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	rows, err := s.Scores.ListErrored(r.Context(), companyID)
	if err != nil {
		http.Error(w, "list errored", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreateDashboardType(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "create-dashboard-type")

	var dt types.DashboardType
	if err := json.NewDecoder(r.Body).Decode(&dt); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Registry.Create(r.Context(), &dt); err != nil {
		reqLog.WithError(err).Warn("dashboard type rejected")
		status := http.StatusInternalServerError
		if apperr.Is(err, apperr.ErrWeightConfiguration) || apperr.Is(err, apperr.ErrAlreadyExists) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusCreated, dt)
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	var p types.LLMProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Registry.ActivateProfile(r.Context(), &p); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		APIKey    string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CompanyID == "" || req.APIKey == "" {
		http.Error(w, "company_id and api_key required", http.StatusBadRequest)
		return
	}
	sealed, err := s.Encryptor.Encrypt(req.APIKey, req.CompanyID)
	if err != nil {
		http.Error(w, "seal credential", http.StatusInternalServerError)
		return
	}
	if err := s.Credentials.Set(r.Context(), req.CompanyID, store.LLMAPIKeyName, sealed); err != nil {
		http.Error(w, "store credential", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	dtID := r.URL.Query().Get("dashboard_type_id")
	if callID == "" || dtID == "" {
		http.Error(w, "call_id and dashboard_type_id required", http.StatusBadRequest)
		return
	}
	score, err := s.Engine.Reprocess(r.Context(), callID, dtID)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	if err := s.Aggregator.RecomputeCompany(r.Context(), companyID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireCompany(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	res, err := dataset.Import(r.Context(), path, companyID, s.Calls)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requireCompany(w http.ResponseWriter, r *http.Request) (string, bool) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "missing company_id", http.StatusBadRequest)
		return "", false
	}
	return companyID, true
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Component("server").WithError(err).Error("failed to write response")
	}
}
