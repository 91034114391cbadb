package repo

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/agent/model"
)

// MemoryTranscriptRepository keeps transcripts in process memory. It is used
// when no Redis is configured and in tests.
type MemoryTranscriptRepository struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	items     map[string]*memoryTranscript
	nextSweep time.Time
}

type memoryTranscript struct {
	messages  []*schema.Message
	expiresAt time.Time
}

func NewMemoryTranscriptRepository(ttl time.Duration) *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*memoryTranscript),
	}
}

func (t *memoryTranscript) expired(now time.Time) bool {
	return !t.expiresAt.IsZero() && !now.Before(t.expiresAt)
}

// get returns a live entry; callers hold mu.
func (r *MemoryTranscriptRepository) get(id string) (*memoryTranscript, bool) {
	t, ok := r.items[id]
	if !ok || t.expired(r.now()) {
		return nil, false
	}
	return t, true
}

// sweep deletes expired entries at most once per ttl; callers hold mu for writing.
func (r *MemoryTranscriptRepository) sweep() {
	if r.ttl <= 0 {
		return
	}
	now := r.now()
	if now.Before(r.nextSweep) {
		return
	}
	for id, t := range r.items {
		if t.expired(now) {
			delete(r.items, id)
		}
	}
	r.nextSweep = now.Add(r.ttl)
}

// Len reports how many transcripts are held, expired ones included until the next sweep.
func (r *MemoryTranscriptRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *MemoryTranscriptRepository) Append(_ context.Context, conversationID string, messages ...*schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep()
	t, ok := r.get(conversationID)
	if !ok {
		t = &memoryTranscript{}
		r.items[conversationID] = t
	}
	t.messages = append(t.messages, messages...)
	if r.ttl > 0 {
		t.expiresAt = r.now().Add(r.ttl)
	}
	return nil
}

func (r *MemoryTranscriptRepository) Load(_ context.Context, conversationID string) (*model.Transcript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := &model.Transcript{ConversationID: conversationID, Messages: []*schema.Message{}}
	if t, ok := r.get(conversationID); ok {
		out.Messages = append(out.Messages, t.messages...)
	}
	return out, nil
}

func (r *MemoryTranscriptRepository) Clear(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, conversationID)
	return nil
}

func (r *MemoryTranscriptRepository) Count(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.get(conversationID); ok {
		return len(t.messages), nil
	}
	return 0, nil
}

var _ model.TranscriptRepository = (*MemoryTranscriptRepository)(nil)
