package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/scraper"
)

// scrape runs one lobstr-scraper operation. The operation result's fields
// are flattened into the envelope next to success and debugData.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scraper.Request
	if err := s.decode(r, "lobstr-scraper", &req); err != nil {
		writeError(w, err)
		return
	}
	if authed, ok := UserID(r.Context()); ok && req.UserID == "" {
		req.UserID = authed
	}
	debug := map[string]any{"request": req}

	result, err := s.deps.Scraper.Handle(r.Context(), req)
	if err != nil {
		s.logger.Warn("scraper operation failed",
			zap.String("type", req.Type),
			zap.String("code", string(apperr.CodeOf(err))),
			zap.Error(err))
		writeJSON(w, apperr.HTTPStatus(err), newErrorEnvelope(err, debug))
		return
	}

	body, err := flatten(result)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, "lobstr-scraper", err))
		return
	}
	body["success"] = true
	body["type"] = req.Type
	body["debugData"] = debug
	writeJSON(w, http.StatusOK, body)
}

func flatten(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("flatten result: %w", err)
	}
	return out, nil
}
