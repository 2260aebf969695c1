package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// PostStore keeps the latest version of each post, keyed by platform and
// post ID.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]scrape.ScrapedPost
	runs  map[string]uuid.UUID
	order []string
}

// NewPostStore constructs a PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		posts: make(map[string]scrape.ScrapedPost),
		runs:  make(map[string]uuid.UUID),
	}
}

// SavePosts upserts posts and returns how many were new.
func (s *PostStore) SavePosts(_ context.Context, runID uuid.UUID, posts []scrape.ScrapedPost) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, p := range posts {
		key := p.Key()
		if _, ok := s.posts[key]; !ok {
			s.order = append(s.order, key)
			inserted++
		}
		s.posts[key] = p
		s.runs[key] = runID
	}
	return inserted, nil
}

// Posts returns every stored post for platform in first-seen order; an empty
// platform returns all posts.
func (s *PostStore) Posts(platform scrape.Platform) []scrape.ScrapedPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.ScrapedPost, 0, len(s.order))
	for _, key := range s.order {
		p := s.posts[key]
		if platform == "" || p.Platform == platform {
			out = append(out, p)
		}
	}
	return out
}

// LastRun returns the run that most recently saved the post with key.
func (s *PostStore) LastRun(key string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.runs[key]
	return id, ok
}
