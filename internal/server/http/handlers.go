package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/stats"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// searchRequest is the JSON request body for a single-author search.
type searchRequest struct {
	Name      string `json:"name" validate:"required,max=300"`
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// search handles POST /search.
// It aggregates every source for one author and returns the partitioned
// records together with their summary statistics.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	window, err := s.requestWindow(req.StartDate, req.EndDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := r.Context()
	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	parts, err := s.searcher.Search(ctx, req.Name, window, s.directory)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "search timed out")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Name:    req.Name,
		Window:  windowToResponse(window),
		Counts:  partitionedCounts(parts),
		Records: nonNilPartitioned(parts),
		Stats:   stats.Compute(parts, window),
	})
}

// requestWindow builds the search window of a request. Without dates the
// server's default window applies.
func (s *Server) requestWindow(start, end string) (domain.DateWindow, error) {
	if strings.TrimSpace(start) == "" && strings.TrimSpace(end) == "" {
		return s.config.DefaultWindow, nil
	}
	return domain.ParseWindow(start, end)
}

// decodeBody reads a size-limited JSON body into v and validates it. It
// writes a 400 response and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders validator errors without echoing the offending values.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// errorResponses maps error classes to a status and a client-safe message.
// The first match wins.
var errorResponses = []struct {
	target  error
	status  int
	message string
}{
	{domain.ErrNotFound, http.StatusNotFound, "resource not found"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
	{domain.ErrAlreadyExists, http.StatusConflict, "resource already exists"},
	{domain.ErrNoIdentityFound, http.StatusNotFound, "no author identity found"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate limited"},
	{domain.ErrServiceUnavailable, http.StatusServiceUnavailable, "service unavailable"},
	{context.Canceled, http.StatusConflict, "operation cancelled"},
}

// writeDomainError writes the response for err. Only validation messages
// reach the client verbatim; anything unclassified is a bare 500.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	for _, e := range errorResponses {
		if errors.Is(err, e.target) {
			writeError(w, e.status, e.message)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// parseUUID writes a 400 naming fieldName, without echoing s, when s is not
// a UUID.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// page is an offset window over a listing. Clients see the offset only as
// an opaque page_token.
type page struct {
	limit  int
	offset int
}

// pageFromQuery reads page_size and page_token. Malformed values fall back
// to the first page of defaultPageSize.
func pageFromQuery(q url.Values) page {
	p := page{limit: defaultPageSize}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		p.limit = min(n, maxPageSize)
	}
	if raw, err := base64.RawURLEncoding.DecodeString(q.Get("page_token")); err == nil {
		if n, err := strconv.Atoi(string(raw)); err == nil && n > 0 {
			p.offset = n
		}
	}
	return p
}

// nextToken returns the token of the following page, or "" on the last one.
func (p page) nextToken(total int) string {
	next := p.offset + p.limit
	if next >= total {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(next)))
}
