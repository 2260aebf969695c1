package trends

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trendscraper/internal/scrape"
)

func TestScoreHashtags(t *testing.T) {
	t.Parallel()

	scores := ScoreHashtags([]Observation{
		{Tag: "dance", Count: intPtr(2), Engagement: 10},
		{Tag: "dance", Engagement: 5},
		{Tag: "fyp", Count: intPtr(1), Engagement: 3},
		{Tag: ""},
	})

	require.Len(t, scores, 2)
	require.Equal(t, 3, scores["dance"].Count)
	require.InDelta(t, 15*math.Sqrt(4), scores["dance"].Score, 1e-9)
	require.InDelta(t, 3*math.Sqrt(2), scores["fyp"].Score, 1e-9)
}

func TestScoreHashtagsExplicitZeroCount(t *testing.T) {
	t.Parallel()

	scores := ScoreHashtags([]Observation{
		{Tag: "dance", Count: intPtr(0), Engagement: 4},
		{Tag: "dance", Engagement: 2},
		{Tag: "quiet", Count: intPtr(0), Engagement: 9},
		{Tag: "odd", Count: intPtr(-3), Engagement: 1},
	})

	require.Equal(t, 1, scores["dance"].Count)
	require.InDelta(t, 6*math.Sqrt(2), scores["dance"].Score, 1e-9)
	require.Equal(t, 0, scores["quiet"].Count)
	require.InDelta(t, 9.0, scores["quiet"].Score, 1e-9)
	require.Equal(t, 0, scores["odd"].Count)
}

func TestRankOrdersAndTruncates(t *testing.T) {
	t.Parallel()

	ranked := Rank([]Observation{
		{Tag: "b", Engagement: 1},
		{Tag: "a", Engagement: 1},
		{Tag: "c", Engagement: 100},
	}, 2)

	require.Len(t, ranked, 2)
	require.Equal(t, "c", ranked[0].Tag)
	require.Equal(t, "a", ranked[1].Tag)
	require.Len(t, Rank(nil, 5), 0)
}

func TestFromPosts(t *testing.T) {
	t.Parallel()

	likes := int64(40)
	withCounts, err := scrape.NewPost(scrape.PlatformYouTube, "abcdef1", "https://youtube.com/shorts/abcdef1", scrape.PostFields{
		Caption:  "New #Dance #dance challenge",
		Hashtags: []string{"fyp"},
		Likes:    &likes,
	})
	require.NoError(t, err)
	plain, err := scrape.NewPost(scrape.PlatformInstagram, "Cx1", "https://instagram.com/reel/Cx1/", scrape.PostFields{Caption: "#dance"})
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	obs := FromPosts([]scrape.ScrapedPost{withCounts, plain}, at)

	require.Len(t, obs, 3)
	require.Equal(t, "fyp", obs[0].Tag)
	require.Equal(t, 40.0, obs[1].Engagement)
	require.Equal(t, 1.0, obs[2].Engagement)
	require.Equal(t, at, obs[2].At)

	ranked := Rank(obs, 1)
	require.Equal(t, "dance", ranked[0].Tag)
	require.Equal(t, 2, ranked[0].Count)
}

func TestVelocity(t *testing.T) {
	t.Parallel()

	require.Zero(t, Velocity(nil, nil))
	require.Zero(t, Velocity([]float64{1}, []float64{5}))
	require.Zero(t, Velocity([]float64{1, 2}, []float64{5}))
	require.Zero(t, Velocity([]float64{3, 3, 3}, []float64{1, 2, 3}))
	require.InDelta(t, 2.0, Velocity([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7}), 1e-9)
	require.InDelta(t, -0.5, Velocity([]float64{0, 2, 4}, []float64{4, 3, 2}), 1e-9)
}

func intPtr(v int) *int { return &v }
