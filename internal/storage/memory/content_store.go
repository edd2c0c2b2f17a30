package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

// ContentStore is an in-memory implementation of the article workflow's
// persistence ports.
type ContentStore struct {
	mu         sync.RWMutex
	brands     map[string]content.BrandInfo
	campaigns  map[string]content.CampaignInfo
	executions map[string]content.Execution
	posts      map[string]content.BlogPost
	topics     map[string]bool
	usage      []content.UsageRecord
	seq        int
}

var (
	_ content.ContextStore   = (*ContentStore)(nil)
	_ content.ExecutionStore = (*ContentStore)(nil)
	_ content.ArticleStore   = (*ContentStore)(nil)
	_ content.UsageLogger    = (*ContentStore)(nil)
)

// NewContentStore constructs an empty ContentStore.
func NewContentStore() *ContentStore {
	return &ContentStore{
		brands:     make(map[string]content.BrandInfo),
		campaigns:  make(map[string]content.CampaignInfo),
		executions: make(map[string]content.Execution),
		posts:      make(map[string]content.BlogPost),
		topics:     make(map[string]bool),
	}
}

// PutBrand seeds a brand.
func (s *ContentStore) PutBrand(b content.BrandInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brands[b.ID] = b
}

// PutCampaign seeds a campaign.
func (s *ContentStore) PutCampaign(c content.CampaignInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// PutTopic seeds a selected topic as not yet completed.
func (s *ContentStore) PutTopic(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[id] = false
}

// GetBrand returns nil when the brand is unknown.
func (s *ContentStore) GetBrand(_ context.Context, id string) (*content.BrandInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.brands[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// GetCampaign returns nil when the campaign is unknown.
func (s *ContentStore) GetCampaign(_ context.Context, id string) (*content.CampaignInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SaveExecution merges an update into the stored execution.
func (s *ContentStore) SaveExecution(_ context.Context, u content.ExecutionUpdate) error {
	if u.ID == "" {
		return fmt.Errorf("execution id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exec := s.executions[u.ID]
	exec.ID = u.ID
	exec.Status = u.Status
	exec.CurrentStage = u.CurrentStage
	exec.Progress = u.Progress
	if len(u.Result) > 0 {
		exec.Result = append([]byte(nil), u.Result...)
	}
	if u.Error != nil {
		msg := *u.Error
		exec.Error = &msg
	}
	if u.StageResults != nil {
		sr := *u.StageResults
		exec.StageResults = &sr
	}
	if u.CampaignID != "" {
		exec.CampaignID = u.CampaignID
	}
	exec.UpdatedAt = u.At
	if exec.UpdatedAt.IsZero() {
		exec.UpdatedAt = time.Now().UTC()
	}
	s.executions[u.ID] = exec
	return nil
}

// GetExecution returns content.ErrNotFound for unknown IDs.
func (s *ContentStore) GetExecution(_ context.Context, id string) (content.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return content.Execution{}, content.ErrNotFound
	}
	return exec, nil
}

// LatestStageResults returns the newest completed execution's stage results
// for the campaign.
func (s *ContentStore) LatestStageResults(_ context.Context, campaignID string) (*content.StageResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []content.Execution
	for _, exec := range s.executions {
		if exec.CampaignID == campaignID && exec.Status == content.ExecutionCompleted && exec.StageResults != nil {
			candidates = append(candidates, exec)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt) })
	sr := *candidates[0].StageResults
	return &sr, nil
}

// AddPlaceholder seeds a "generating" post and returns its ID.
func (s *ContentStore) AddPlaceholder(title, brandID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.posts[id] = content.BlogPost{ID: id, Title: title, BrandID: brandID, Status: content.PostStatusGenerating}
	return id
}

// FindPlaceholder looks up a "generating" post by title and brand.
func (s *ContentStore) FindPlaceholder(_ context.Context, title, brandID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, p := range s.posts {
		if p.Title == title && p.BrandID == brandID && p.Status == content.PostStatusGenerating {
			return id, true, nil
		}
	}
	return "", false, nil
}

// InsertPost stores a new post.
func (s *ContentStore) InsertPost(_ context.Context, post content.BlogPost) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.ID = s.nextID()
	s.posts[post.ID] = post
	return post.ID, nil
}

// UpdatePost overwrites an existing post.
func (s *ContentStore) UpdatePost(_ context.Context, id string, post content.BlogPost) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.posts[id]
	if !ok {
		return "", content.ErrNoRowReturned
	}
	post.ID = id
	if post.BrandID == "" {
		post.BrandID = prev.BrandID
	}
	s.posts[id] = post
	return id, nil
}

// MarkTopicCompleted flags a seeded topic.
func (s *ContentStore) MarkTopicCompleted(_ context.Context, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topicID]; !ok {
		return fmt.Errorf("topic %s: %w", topicID, content.ErrNotFound)
	}
	s.topics[topicID] = true
	return nil
}

// TopicCompleted reports whether a topic was marked completed.
func (s *ContentStore) TopicCompleted(topicID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics[topicID]
}

// LogUsage appends a usage record.
func (s *ContentStore) LogUsage(_ context.Context, r content.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, r)
	return nil
}

// Posts returns every stored post.
func (s *ContentStore) Posts() []content.BlogPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]content.BlogPost, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Usage returns every logged usage record.
func (s *ContentStore) Usage() []content.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]content.UsageRecord(nil), s.usage...)
}

func (s *ContentStore) nextID() string {
	s.seq++
	return fmt.Sprintf("post-%04d", s.seq)
}
