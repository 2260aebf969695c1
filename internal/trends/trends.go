// Package trends scores hashtags and measures how fast a series grows.
package trends

import (
	"math"
	"sort"
	"time"

	"github.com/JakeFAU/trendscraper/internal/hashtag"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// Observation is one sighting of a hashtag. A nil Count counts as one; an
// explicit count, zero included, is taken as given.
type Observation struct {
	Tag        string
	Count      *int
	Engagement float64
	At         time.Time
}

// TagScore is the aggregate of every observation of a tag.
type TagScore struct {
	Tag        string  `json:"tag"`
	Count      int     `json:"count"`
	Engagement float64 `json:"engagement"`
	Score      float64 `json:"score"`
	// Velocity is the growth of Count per hour across earlier runs; zero
	// until at least two points exist.
	Velocity float64 `json:"velocity"`
}

// ScoreHashtags aggregates history per tag and scores each tag as
// engagement * sqrt(count + 1).
func ScoreHashtags(history []Observation) map[string]TagScore {
	agg := make(map[string]TagScore)
	for _, o := range history {
		if o.Tag == "" {
			continue
		}
		count := 1
		if o.Count != nil {
			count = max(*o.Count, 0)
		}
		s := agg[o.Tag]
		s.Tag = o.Tag
		s.Count += count
		s.Engagement += o.Engagement
		agg[o.Tag] = s
	}
	for tag, s := range agg {
		s.Score = s.Engagement * math.Sqrt(float64(s.Count)+1)
		agg[tag] = s
	}
	return agg
}

// Rank returns the n highest scoring tags, ties broken by count then name.
// n <= 0 returns every tag.
func Rank(history []Observation, n int) []TagScore {
	scores := ScoreHashtags(history)
	out := make([]TagScore, 0, len(scores))
	for _, s := range scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Engagement sums the observed counters of a post. Posts without any
// observed counter weigh 1 so that frequency still ranks tags.
func Engagement(p scrape.ScrapedPost) float64 {
	var total float64
	observed := false
	for _, v := range []*int64{p.Likes, p.Comments} {
		if v != nil {
			total += float64(*v)
			observed = true
		}
	}
	if !observed {
		return 1
	}
	return total
}

// FromPosts turns the caption hashtags of posts into observations at at.
// Tags already on the post are merged with those found in its caption.
func FromPosts(posts []scrape.ScrapedPost, at time.Time) []Observation {
	var out []Observation
	for _, p := range posts {
		eng := Engagement(p)
		for _, tag := range PostTags(p) {
			out = append(out, Observation{Tag: tag, Engagement: eng, At: at})
		}
	}
	return out
}

// PostTags returns the distinct tags of p: those already on the post
// followed by those found in its caption.
func PostTags(p scrape.ScrapedPost) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tag := range append(append([]string{}, p.Hashtags...), hashtag.Extract(p.CaptionText())...) {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Velocity is the least-squares slope of counts over times. Fewer than two
// points, mismatched lengths or a constant time axis yield zero.
func Velocity(times, counts []float64) float64 {
	n := len(times)
	if n < 2 || n != len(counts) {
		return 0
	}
	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += times[i]
		meanY += counts[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := times[i] - meanX
		sxy += dx * (counts[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0
	}
	return sxy / sxx
}
