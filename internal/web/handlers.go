package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/corpfetch/internal/core"
	"github.com/JonMunkholm/corpfetch/internal/logging"
)

// handleSaveCompanies runs one fetch for the posted city and district and
// responds with the FetchResult.
//
//	POST /api/v1/companies
//	{"city": "서울특별시", "district": "강남구"}
func (s *Server) handleSaveCompanies(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("fetch requested", "city", req.City, "district", req.District)

	result, err := s.fetcher.SaveCompanies(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (core.Request, error) {
	var req core.Request

	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("%w: empty body", core.ErrInvalidRequest)
		}
		return req, fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req.Normalized(), nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Fetches       core.FetchLimiterStatus `json:"fetches"`
	UptimeSeconds int64                   `json:"uptimeSeconds"`
	Persistence   bool                    `json:"persistence"`
	Archive       bool                    `json:"archive"`
}

// handleStatus reports fetch slot usage and which collaborators are enabled.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{
		Fetches:       s.fetcher.FetchLimiterStatus(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Persistence:   s.cfg.Database.Enabled(),
		Archive:       s.cfg.Archive.Enabled(),
	})
}
