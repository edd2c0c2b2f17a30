package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/backlink"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
	"github.com/JakeFAU/content-orchestrator/internal/prompt"
)

const (
	defaultMinArticleChars = 100
	defaultMetaMaxChars    = 155
	defaultPostStatus      = "published"
	usageLogTimeout        = 10 * time.Second
)

// Config tunes model calls and output limits.
type Config struct {
	Model           string
	MaxTokens       int
	Temperature     float64
	MinArticleChars int
	MetaMaxChars    int
	PostStatus      string
}

// Backlinks starts detached backlink optimization.
type Backlinks interface {
	Dispatch(ctx context.Context, job backlink.Job) *backlink.Task
}

// Deps are the ports the pipeline drives. References, Images, Backlinks,
// Usage and Progress are optional.
type Deps struct {
	Completer  content.Completer
	Prompts    *prompt.Catalog
	Context    content.ContextStore
	Executions content.ExecutionStore
	Articles   content.ArticleStore
	Usage      content.UsageLogger
	References content.ReferenceFetcher
	Images     content.ImageService
	Backlinks  Backlinks
	Progress   progress.Updater
}

// Pipeline runs article workflows. It is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	bg sync.WaitGroup
}

// New validates deps and applies config defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Completer == nil:
		return nil, errors.New("pipeline: completer is required")
	case deps.Prompts == nil:
		return nil, errors.New("pipeline: prompt catalog is required")
	case deps.Context == nil:
		return nil, errors.New("pipeline: context store is required")
	case deps.Executions == nil:
		return nil, errors.New("pipeline: execution store is required")
	case deps.Articles == nil:
		return nil, errors.New("pipeline: article store is required")
	}
	if cfg.MinArticleChars <= 0 {
		cfg.MinArticleChars = defaultMinArticleChars
	}
	if cfg.MetaMaxChars <= 0 {
		cfg.MetaMaxChars = defaultMetaMaxChars
	}
	if cfg.PostStatus == "" {
		cfg.PostStatus = defaultPostStatus
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logging.Named(logger, "pipeline")}, nil
}

// Run processes every topic of req in order. On a hard failure the failed
// status is written before the error is returned, and the Outcome still
// carries the stage results gathered so far.
func (p *Pipeline) Run(ctx context.Context, req content.Request) (Outcome, error) {
	out := Outcome{
		ExecutionID: req.ExecutionID,
		Articles:    []content.Article{},
		Results:     Results{},
		Warnings:    []Warning{},
		Mode:        SingleStageFallback.String(),
	}
	if len(req.Topics) == 0 {
		return out, apperr.New(apperr.CodeInvalidInput, "pipeline", "at least one topic is required")
	}

	logger := p.logger.With(zap.String("execution_id", req.ExecutionID))
	p.report(ctx, req.ExecutionID, progress.Update{
		Status:     content.ExecutionProcessing,
		Stage:      "started",
		CampaignID: req.Topics[0].EffectiveCampaignID(),
	})

	for i, topic := range req.Topics {
		run := &topicRun{
			p:      p,
			req:    req,
			topic:  topic,
			index:  i,
			total:  len(req.Topics),
			out:    &out,
			logger: logger.With(zap.String("topic", topic.Title)),
		}
		article, err := run.execute(ctx)
		if err != nil {
			p.fail(ctx, req.ExecutionID, run.stage, run.progress, err, &out)
			return out, err
		}
		out.Articles = append(out.Articles, article)
		a := article
		out.Article = &a
	}

	result, err := json.Marshal(out)
	if err != nil {
		logger.Warn("marshal execution result", zap.Error(err))
	}
	p.report(ctx, req.ExecutionID, progress.Update{
		Status:   content.ExecutionCompleted,
		Stage:    "completed",
		Progress: 100,
		Result:   result,
	})
	logger.Info("article workflow completed",
		zap.Int("articles", len(out.Articles)),
		zap.Int("warnings", len(out.Warnings)))
	return out, nil
}

// Wait blocks until detached usage writes and backlink dispatches finished.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) fail(ctx context.Context, executionID, stage string, pct int, err error, out *Outcome) {
	msg := err.Error()
	result, _ := json.Marshal(out)
	p.report(ctx, executionID, progress.Update{
		Status:   content.ExecutionFailed,
		Stage:    stage,
		Progress: pct,
		Error:    &msg,
		Result:   result,
	})
	p.logger.Error("article workflow failed",
		zap.String("execution_id", executionID),
		zap.String("stage", stage),
		zap.Error(err))
}

func (p *Pipeline) report(ctx context.Context, executionID string, u progress.Update) {
	if p.deps.Progress == nil {
		return
	}
	p.deps.Progress.Update(ctx, executionID, u)
}

// track holds Wait open until task finishes without retaining the handle.
func (p *Pipeline) track(task *backlink.Task) {
	if task == nil {
		return
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		<-task.Done()
	}()
}

// logUsage records token usage in the background; the caller never waits.
func (p *Pipeline) logUsage(ctx context.Context, rec content.UsageRecord) {
	if p.deps.Usage == nil {
		return
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageLogTimeout)
		defer cancel()
		if err := p.deps.Usage.LogUsage(uctx, rec); err != nil {
			p.logger.Warn("usage logging failed",
				zap.String("execution_id", rec.ExecutionID),
				zap.String("stage", rec.Stage),
				zap.Error(err))
		}
	}()
}
