// Package backlink dispatches post-save backlink optimization as a detached
// background task. The caller never waits on the result; the returned Task
// handle lets tests and shutdown hooks observe completion.
package backlink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/logging"
)

// MessageType is the Pub/Sub "type" attribute of optimization requests.
const MessageType = "backlink.optimize"

const defaultTimeout = 30 * time.Second

// Publisher delivers one message to the backlink worker.
type Publisher interface {
	Publish(ctx context.Context, msgType string, payload any) (string, error)
}

// Job is the optimization request for one saved post.
type Job struct {
	PostID      string   `json:"post_id"`
	BrandID     string   `json:"brand_id,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Task is the handle of one detached dispatch.
type Task struct {
	done chan struct{}
	id   string
	err  error
}

// Done is closed once the publish attempt finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the message id and error. Valid only after Done is closed.
func (t *Task) Result() (string, error) {
	return t.id, t.err
}

// Dispatcher starts detached publish goroutines.
type Dispatcher struct {
	pub     Publisher
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. A non-positive timeout uses 30s.
func NewDispatcher(pub Publisher, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{pub: pub, timeout: timeout, logger: logging.Named(logger, "backlink")}
}

// Dispatch publishes the job in the background. ctx only contributes its
// values; cancellation of the request does not stop the publish.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) *Task {
	task := &Task{done: make(chan struct{})}
	if d == nil || d.pub == nil {
		close(task.done)
		return task
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(task.done)
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		task.id, task.err = d.pub.Publish(runCtx, MessageType, job)
		if task.err != nil {
			d.logger.Warn("backlink optimization dispatch failed",
				zap.String("post_id", job.PostID),
				zap.String("execution_id", job.ExecutionID),
				zap.Error(task.err))
			return
		}
		d.logger.Info("backlink optimization dispatched",
			zap.String("post_id", job.PostID),
			zap.String("message_id", task.id))
	}()
	return task
}

// Wait blocks until every dispatched task finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
