package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jsonstore/internal/domain"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	logpkg "github.com/kailas-cloud/jsonstore/internal/logger"
	entryuc "github.com/kailas-cloud/jsonstore/internal/usecase/entry"
	healthuc "github.com/kailas-cloud/jsonstore/internal/usecase/health"
)

// External names of the reserved entry fields.
const (
	FieldID      = "jsonstore:id"
	FieldUpdated = "jsonstore:updated"
)

const (
	defaultPageSize     = 20
	defaultMaxPageSize  = 100
	defaultMaxBodyBytes = 1 << 20
)

// Error codes returned in errorResponse.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeInvalidQuery = "invalid_query"
	codeValidation   = "validation_failed"
	codeInternal     = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listResponse struct {
	Items []map[string]any `json:"items"`
	Next  *string          `json:"next"`
}

type countResponse struct {
	Count int `json:"count"`
}

type reindexResponse struct {
	Indexed int `json:"indexed"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the entry service over REST.
type Server struct {
	entries       *entryuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler

	defaultSize  int
	maxSize      int
	maxBodyBytes int64
}

// NewServer creates an HTTP API server.
func NewServer(entries *entryuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		entries:      entries,
		health:       health,
		logger:       logger,
		defaultSize:  defaultPageSize,
		maxSize:      defaultMaxPageSize,
		maxBodyBytes: defaultMaxBodyBytes,
		errorHandlers: []errorHandler{
			sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
			sentinelHandler(domain.ErrConflict, http.StatusConflict, codeConflict),
			sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
			sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidation),
		},
	}
}

// WithPagination sets the listing page size used when none is requested and
// the largest one accepted.
func (s *Server) WithPagination(defaultSize, maxSize int) *Server {
	if defaultSize > 0 {
		s.defaultSize = defaultSize
	}
	if maxSize > 0 {
		s.maxSize = maxSize
	}
	if s.defaultSize > s.maxSize {
		s.defaultSize = s.maxSize
	}
	return s
}

// WithMaxBodyBytes limits request bodies.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Get("/entries", s.ListEntries)
	r.Post("/entries", s.CreateEntry)
	r.Get("/entries/{id}", s.GetEntry)
	r.Put("/entries/{id}", s.UpdateEntry)
	r.Delete("/entries/{id}", s.DeleteEntry)
	r.Post("/reindex", s.Reindex)
}

// CreateEntry handles POST /entries.
func (s *Server) CreateEntry(w http.ResponseWriter, r *http.Request) {
	body, id, updated, err := s.decodeEntry(w, r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	e, err := s.entries.Create(r.Context(), body, id, updated)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/entries/"+url.PathEscape(e.ID()))
	writeJSON(w, http.StatusCreated, entryToJSON(&e))
}

// GetEntry handles GET /entries/{id}.
func (s *Server) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryToJSON(&e))
}

// UpdateEntry handles PUT /entries/{id}. The body replaces the stored one.
func (s *Server) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, bodyID, updated, err := s.decodeEntry(w, r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if bodyID != "" && bodyID != id {
		s.handleDomainError(w, r, fmt.Errorf("body id %q does not match %q: %w", bodyID, id, domain.ErrConflict))
		return
	}

	e, err := s.entries.Update(r.Context(), id, body, updated)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entryToJSON(&e))
}

// DeleteEntry handles DELETE /entries/{id}.
func (s *Server) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /entries. Without q it lists every entry; with
// count set it returns only the number of matches.
func (s *Server) ListEntries(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	key, err := parseQueryKey(params.Get("q"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	bare, err := parseMode(params.Get("mode"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if countOnly, _ := strconv.ParseBool(params.Get("count")); countOnly {
		n, err := s.entries.Count(r.Context(), key, bare)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
		return
	}

	size, offset, err := s.parsePage(params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	// One extra entry tells whether a next page exists.
	entries, err := s.entries.Search(r.Context(), key, entryuc.SearchOptions{
		Offset: offset,
		Size:   size + 1,
		Bare:   bare,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := listResponse{}
	if len(entries) > size {
		entries = entries[:size]
		next := nextPageURL(r.URL, size, offset+size)
		resp.Next = &next
	}
	resp.Items = make([]map[string]any, len(entries))
	for i := range entries {
		resp.Items[i] = entryToJSON(&entries[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reindex handles POST /reindex.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := s.entries.Reindex(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{Indexed: n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeEntry reads an entry body and pulls out the reserved external fields.
func (s *Server) decodeEntry(w http.ResponseWriter, r *http.Request) (map[string]any, string, any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, "", nil, fmt.Errorf("invalid request body: %v: %w", err, domain.ErrValidation)
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, "", nil, fmt.Errorf("entry must be a JSON object: %w", domain.ErrValidation)
	}

	var id string
	if v, ok := body[FieldID]; ok {
		delete(body, FieldID)
		switch t := v.(type) {
		case string:
			id = t
		case json.Number:
			id = t.String()
		default:
			return nil, "", nil, fmt.Errorf("%s must be a string or number: %w", FieldID, domain.ErrValidation)
		}
	}

	var updated any
	if v, ok := body[FieldUpdated]; ok {
		delete(body, FieldUpdated)
		updated = v
	}
	return body, id, updated, nil
}

// parseQueryKey decodes the q parameter. External field names map to the
// reserved keys.
func parseQueryKey(q string) (map[string]any, error) {
	if q == "" {
		return map[string]any{}, nil
	}
	var raw any
	if err := json.Unmarshal([]byte(q), &raw); err != nil {
		return nil, fmt.Errorf("q is not valid JSON: %v: %w", err, domain.ErrInvalidQuery)
	}
	key, err := query.Decode(raw)
	if err != nil {
		return nil, err
	}
	for external, reserved := range map[string]string{FieldID: domain.IDKey, FieldUpdated: domain.UpdatedKey} {
		if v, ok := key[external]; ok {
			delete(key, external)
			key[reserved] = v
		}
	}
	return key, nil
}

// parseMode maps the mode parameter to the operator applied to bare values:
// 0 matches equal values, 1 matches LIKE patterns.
func parseMode(v string) (operator.Kind, error) {
	switch v {
	case "", "0":
		return operator.Equal, nil
	case "1":
		return operator.Like, nil
	default:
		return operator.Invalid, fmt.Errorf("mode %q not supported: %w", v, domain.ErrInvalidQuery)
	}
}

func (s *Server) parsePage(params url.Values) (size, offset int, err error) {
	size = s.defaultSize
	if v := params.Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size <= 0 {
			return 0, 0, fmt.Errorf("size must be a positive integer: %w", domain.ErrInvalidQuery)
		}
		size = min(size, s.maxSize)
	}
	if v := params.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer: %w", domain.ErrInvalidQuery)
		}
	}
	return size, offset, nil
}

func nextPageURL(u *url.URL, size, offset int) string {
	params := u.Query()
	params.Set("size", strconv.Itoa(size))
	params.Set("offset", strconv.Itoa(offset))
	return u.Path + "?" + params.Encode()
}

func entryToJSON(e *domdoc.Entry) map[string]any {
	m := e.Body()
	m[FieldID] = e.ID()
	m[FieldUpdated] = domain.FormatTimestamp(e.Updated())
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the message of errors caused by the client and a
// generic one for everything else.
func safeDomainMessage(err error) string {
	for _, s := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrInvalidQuery, domain.ErrValidation} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
