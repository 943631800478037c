package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/resolver"
	"github.com/hyperjump/kbassist/internal/retriever"
	"github.com/hyperjump/kbassist/internal/storage"
	"go.uber.org/zap"
)

const (
	rootMessage = "kbassist: POST to /resolve-ticket with {\"ticket_text\": \"your query\"} for policy-based resolutions."

	defaultResolutionsLimit = 20
	maxResolutionsLimit     = 100
)

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Results []models.ScoredDocument `json:"results"`
}

type statusResponse struct {
	Index          retriever.Stats      `json:"index"`
	LLM            string               `json:"llm"`
	Resolutions    *int64               `json:"resolutions,omitempty"`
	LastBuild      *storage.BuildRecord `json:"last_build,omitempty"`
	DiskUsageBytes *int64               `json:"disk_usage_bytes,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	var req models.TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TicketText) == "" {
		s.respondError(w, http.StatusBadRequest, "ticket_text is required")
		return
	}
	s.logger.Debug("resolve request", zap.Int("ticket_len", len(req.TicketText)))
	res, err := s.resolver.Resolve(r.Context(), req.TicketText)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolveTickets(w http.ResponseWriter, r *http.Request) {
	var reqs []models.TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tickets := make([]string, len(reqs))
	for i, req := range reqs {
		if strings.TrimSpace(req.TicketText) == "" {
			s.respondError(w, http.StatusBadRequest, "ticket_text is required for ticket "+strconv.Itoa(i))
			return
		}
		tickets[i] = req.TicketText
	}
	s.logger.Debug("batch resolve request", zap.Int("tickets", len(tickets)))
	out, err := s.resolver.ResolveBatch(r.Context(), tickets)
	if err != nil {
		s.respondResolveError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

// respondResolveError maps resolver failures to status codes. A batch failure keeps
// the status of the ticket that failed.
func (s *Server) respondResolveError(w http.ResponseWriter, err error) {
	detail := err.Error()
	var bErr *resolver.BatchError
	if errors.As(err, &bErr) {
		err = bErr.Err
	}
	switch {
	case errors.Is(err, models.ErrNoRelevantDocuments):
		s.respondError(w, http.StatusNotFound, detail)
	case errors.Is(err, models.ErrIndexNotFound):
		s.logger.Error("index unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, detail)
	default:
		s.logger.Error("resolve failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, detail)
	}
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	docs, err := s.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrIndexNotFound) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	if docs == nil {
		docs = []models.ScoredDocument{}
	}
	s.respondJSON(w, http.StatusOK, retrieveResponse{Results: docs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Index: s.retriever.Stats(),
		LLM:   s.llmName,
	}
	if s.storage != nil {
		n, err := s.storage.CountResolutions(r.Context())
		if err != nil {
			s.logger.Error("status: count resolutions failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Resolutions = &n
		builds, err := s.storage.ListBuilds(r.Context(), 1)
		if err != nil {
			s.logger.Error("status: list builds failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(builds) > 0 {
			resp.LastBuild = builds[0]
		}
	}
	if s.config != nil {
		diskBytes, err := storage.DiskUsageBytes(s.config.Storage.IndexDir, s.config.Storage.DatabasePath)
		if err == nil {
			resp.DiskUsageBytes = &diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListResolutions(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "audit log not enabled")
		return
	}
	limit, err := queryInt(r, "limit", defaultResolutionsLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxResolutionsLimit {
		limit = maxResolutionsLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	recs, err := s.storage.ListResolutions(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list resolutions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*storage.ResolutionRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"resolutions": recs, "limit": limit, "offset": offset})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"detail": message})
}
