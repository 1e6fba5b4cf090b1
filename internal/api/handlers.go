package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/leads"
)

// Version is stamped at build time and reported by the health endpoint.
var Version = "dev"

const defaultFraudCaseLimit = 50

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type faqLookupRequest struct {
	Question string `json:"question"`
}

type faqLookupResponse struct {
	Answer  string `json:"answer"`
	Matched bool   `json:"matched"`
}

type leadSavedResponse struct {
	Result string `json:"result"`
}

type fraudSummaryResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: Version})
}

// handleAppConfig serves the active configuration record. Unset optional
// fields are absent from the response, never null or empty.
func (s *Server) handleAppConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Config())
}

func (s *Server) handleFAQLookup(w http.ResponseWriter, r *http.Request) {
	var req faqLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse JSON payload")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "question must not be empty")
		return
	}

	result := s.faq.Lookup(req.Question)

	label := "unmatched"
	if result.Matched {
		label = "matched"
	}
	faqLookupsTotal.WithLabelValues(label).Inc()

	writeJSON(w, http.StatusOK, faqLookupResponse{Answer: result.Answer, Matched: result.Matched})
}

func (s *Server) handleLeadCreate(w http.ResponseWriter, r *http.Request) {
	var lead leads.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse JSON payload")
		return
	}

	if err := s.leads.Save(lead); err != nil {
		s.logger.Error("failed to save lead", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "STORAGE", "could not save lead")
		return
	}

	leadsSavedTotal.Inc()
	writeJSON(w, http.StatusCreated, leadSavedResponse{Result: leads.SavedMessage})
}

func (s *Server) handleLeadList(w http.ResponseWriter, _ *http.Request) {
	list, err := s.leads.List()
	if err != nil {
		s.logger.Error("failed to list leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "STORAGE", "could not read leads")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFraudCases(w http.ResponseWriter, r *http.Request) {
	limit := defaultFraudCaseLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cases, err := s.fraud.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list fraud cases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "STORAGE", "could not read fraud cases")
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) handleFraudSummary(w http.ResponseWriter, r *http.Request) {
	byStatus, err := s.fraud.SummaryByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to summarize fraud cases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "STORAGE", "could not summarize fraud cases")
		return
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	writeJSON(w, http.StatusOK, fraudSummaryResponse{Total: total, ByStatus: byStatus})
}
