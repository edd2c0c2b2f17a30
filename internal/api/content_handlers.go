package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/pipeline"
)

type contentRequest struct {
	Topics            []content.Topic   `json:"topics" validate:"required,min=1,dive"`
	BrandID           string            `json:"brandId"`
	UserID            string            `json:"userId" validate:"omitempty,uuid"`
	Language          string            `json:"language"`
	WordCount         int               `json:"wordCount" validate:"gte=0,lte=20000"`
	Tone              string            `json:"tone"`
	IncludeIntro      bool              `json:"includeIntro"`
	IncludeConclusion bool              `json:"includeConclusion"`
	IncludeFAQ        bool              `json:"includeFAQ"`
	FeaturedImage     bool              `json:"featuredImage"`
	CustomPrompt      string            `json:"customPrompt"`
	ContentSettings   *content.Settings `json:"contentSettings"`
	ExecutionID       string            `json:"executionId"`
}

func (c contentRequest) toRequest(userID string) content.Request {
	req := content.Request{
		ExecutionID:       c.ExecutionID,
		UserID:            userID,
		BrandID:           c.BrandID,
		Topics:            c.Topics,
		Language:          c.Language,
		Tone:              c.Tone,
		WordCount:         c.WordCount,
		IncludeIntro:      c.IncludeIntro,
		IncludeConclusion: c.IncludeConclusion,
		IncludeFAQ:        c.IncludeFAQ,
		FeaturedImage:     c.FeaturedImage,
		CustomPrompt:      c.CustomPrompt,
	}
	if c.ContentSettings != nil {
		req.Settings = *c.ContentSettings
	}
	return req
}

// contentResponse carries the per-stage results on success and on failure.
type contentResponse struct {
	Success          bool               `json:"success"`
	ExecutionID      string             `json:"executionId,omitempty"`
	Article          *content.Article   `json:"article,omitempty"`
	Articles         []content.Article  `json:"articles"`
	WorkflowResults  pipeline.Results   `json:"workflow_results"`
	WorkflowWarnings []pipeline.Warning `json:"workflow_warnings"`
	RefinementMode   string             `json:"refinementMode"`
	Error            string             `json:"error,omitempty"`
	ErrorType        string             `json:"errorType,omitempty"`
	DebugData        map[string]any     `json:"debugData,omitempty"`
}

func (s *Server) writeContent(w http.ResponseWriter, r *http.Request) {
	var body contentRequest
	if err := s.decode(r, "content request", &body); err != nil {
		writeError(w, err)
		return
	}
	userID, err := resolveUser(r, body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := s.deps.Workflow.Run(r.Context(), body.toRequest(userID))
	resp := contentResponse{
		Success:          err == nil,
		ExecutionID:      out.ExecutionID,
		Article:          out.Article,
		Articles:         out.Articles,
		WorkflowResults:  out.Results,
		WorkflowWarnings: out.Warnings,
		RefinementMode:   out.Mode,
	}
	if err != nil {
		env := newErrorEnvelope(err, map[string]any{
			"topics":   len(body.Topics),
			"brand_id": body.BrandID,
		})
		resp.Error, resp.ErrorType, resp.DebugData = env.Error, env.ErrorType, env.DebugData
		s.logger.Error("article workflow failed",
			zap.String("execution_id", body.ExecutionID),
			zap.String("code", env.ErrorType),
			zap.Error(err))
		writeJSON(w, apperr.HTTPStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveUser prefers the authenticated user. A body userId that disagrees
// with the token is rejected.
func resolveUser(r *http.Request, bodyUserID string) (string, error) {
	if authed, ok := UserID(r.Context()); ok {
		if bodyUserID != "" && bodyUserID != authed {
			return "", apperr.New(apperr.CodeUnauthorized, "auth", "userId does not match the authenticated user")
		}
		return authed, nil
	}
	if bodyUserID == "" {
		return "", apperr.New(apperr.CodeInvalidInput, "content request", "userId is required")
	}
	return bodyUserID, nil
}
