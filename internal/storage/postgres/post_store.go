package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// PostStore upserts scraped posts keyed by (platform, post_id).
type PostStore struct {
	db    DB
	table string
}

// NewPostStore wraps db. An empty table defaults to "posts".
func NewPostStore(db DB, table string) (*PostStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	name, err := tableName(table, "posts")
	if err != nil {
		return nil, err
	}
	return &PostStore{db: db, table: name}, nil
}

// SavePosts upserts posts in one transaction and returns how many were new.
// Counters that were not observed in this run keep their stored value.
func (s *PostStore) SavePosts(ctx context.Context, runID uuid.UUID, posts []scrape.ScrapedPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	platform, post_id, url, caption, hashtags, audio,
	views, likes, comments, upload_date, run_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (platform, post_id) DO UPDATE SET
	url = EXCLUDED.url,
	caption = COALESCE(EXCLUDED.caption, %[1]s.caption),
	hashtags = EXCLUDED.hashtags,
	audio = COALESCE(EXCLUDED.audio, %[1]s.audio),
	views = COALESCE(EXCLUDED.views, %[1]s.views),
	likes = COALESCE(EXCLUDED.likes, %[1]s.likes),
	comments = COALESCE(EXCLUDED.comments, %[1]s.comments),
	upload_date = COALESCE(EXCLUDED.upload_date, %[1]s.upload_date),
	run_id = EXCLUDED.run_id,
	last_seen = now()
RETURNING (xmax = 0) AS inserted`, s.table)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin posts tx: %w", err)
	}
	inserted := 0
	for _, p := range posts {
		var isNew bool
		err := tx.QueryRow(ctx, query,
			string(p.Platform),
			p.PostID,
			p.URL,
			p.Caption,
			hashtagsOrEmpty(p.Hashtags),
			p.Audio,
			p.Views,
			p.Likes,
			p.Comments,
			p.UploadDate,
			runID,
		).Scan(&isNew)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("upsert post %s: %w", p.Key(), err)
		}
		if isNew {
			inserted++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit posts tx: %w", err)
	}
	return inserted, nil
}

func hashtagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
