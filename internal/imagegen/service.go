package imagegen

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
)

// Generator produces raw image bytes from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// PromptBuilder renders the image prompt for a request.
type PromptBuilder interface {
	ImagePrompt(req content.ImageRequest) (string, error)
}

// Service implements content.ImageService.
type Service struct {
	gen     Generator
	prompts PromptBuilder
	blobs   content.BlobStore
	ids     content.IDGenerator
	prefix  string
	logger  *zap.Logger
}

var _ content.ImageService = (*Service)(nil)

// NewService wires a Service. prefix is prepended to object paths.
func NewService(gen Generator, prompts PromptBuilder, blobs content.BlobStore, ids content.IDGenerator, prefix string, logger *zap.Logger) *Service {
	return &Service{
		gen:     gen,
		prompts: prompts,
		blobs:   blobs,
		ids:     ids,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logging.Named(logger, "imagegen"),
	}
}

// Generate renders a prompt, generates the image, sniffs its type and
// uploads it. Each step wraps its own failure.
func (s *Service) Generate(ctx context.Context, req content.ImageRequest) (content.FeaturedImage, error) {
	prompt, err := s.prompts.ImagePrompt(req)
	if err != nil {
		return content.FeaturedImage{}, fmt.Errorf("build image prompt: %w", err)
	}
	data, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return content.FeaturedImage{}, fmt.Errorf("generate image: %w", err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return content.FeaturedImage{}, fmt.Errorf("generate image: unexpected content type %s", mt.String())
	}
	id, err := s.ids.NewID()
	if err != nil {
		return content.FeaturedImage{}, fmt.Errorf("image id: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", objectSlug(req), id, mt.Extension())
	objectPath := name
	if s.prefix != "" {
		objectPath = path.Join(s.prefix, name)
	}

	url, err := s.blobs.PutObject(ctx, objectPath, mt.String(), data)
	if err != nil {
		return content.FeaturedImage{}, fmt.Errorf("upload image: %w", err)
	}
	s.logger.Info("featured image uploaded",
		zap.String("path", objectPath),
		zap.String("content_type", mt.String()),
		zap.Int("bytes", len(data)))
	return content.FeaturedImage{URL: url, Alt: AltText(req)}, nil
}

// AltText describes the image for screen readers.
func AltText(req content.ImageRequest) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "Featured image"
	}
	return "Featured image for " + title
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

func objectSlug(req content.ImageRequest) string {
	s := req.Slug
	if s == "" {
		s = req.Title
	}
	s = strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		return "image"
	}
	return s
}
