package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trendscraper/internal/coordinator"
	"github.com/JakeFAU/trendscraper/internal/scrape"
	"github.com/JakeFAU/trendscraper/internal/trends"
)

func TestCompleteStatus(t *testing.T) {
	t.Parallel()

	post, err := scrape.NewPost(scrape.PlatformYouTube, "abcdef1", "https://www.youtube.com/shorts/abcdef1", scrape.PostFields{})
	require.NoError(t, err)
	ok := coordinator.Outcome{Platform: scrape.PlatformYouTube, Posts: []scrape.ScrapedPost{post}, Attempts: 1, Duration: 1500 * time.Millisecond}
	bad := coordinator.Outcome{Platform: scrape.PlatformFacebook, Err: errors.New("boom"), Attempts: 3}

	testCases := []struct {
		name     string
		results  coordinator.Results
		expected Status
	}{
		{"all ok", coordinator.Results{ok.Platform: ok}, StatusSucceeded},
		{"mixed", coordinator.Results{ok.Platform: ok, bad.Platform: bad}, StatusPartial},
		{"all failed", coordinator.Results{bad.Platform: bad}, StatusFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := New(uuid.New(), "dance", 5, []scrape.Platform{scrape.PlatformYouTube}, time.Now())
			require.Equal(t, StatusRunning, r.Status)
			require.False(t, r.Status.Terminal())

			r.Complete(tc.results, time.Now())
			require.Equal(t, tc.expected, r.Status)
			require.True(t, r.Status.Terminal())
			require.NotNil(t, r.FinishedAt)
			require.Len(t, r.Results, len(tc.results))
		})
	}
}

func TestCompleteOrdersPlatforms(t *testing.T) {
	t.Parallel()

	r := New(uuid.New(), "dance", 5, nil, time.Now())
	r.Complete(coordinator.Results{
		scrape.PlatformYouTube:   {Platform: scrape.PlatformYouTube, Duration: 1500 * time.Millisecond},
		scrape.PlatformFacebook:  {Platform: scrape.PlatformFacebook, Err: errors.New("boom")},
		scrape.PlatformInstagram: {Platform: scrape.PlatformInstagram},
	}, time.Now())

	require.Equal(t, scrape.PlatformFacebook, r.Results[0].Platform)
	require.Equal(t, "boom", r.Results[0].Error)
	require.Equal(t, int64(1500), r.Results[2].DurationMS)
}

func TestTagCount(t *testing.T) {
	t.Parallel()

	r := RunReport{TopHashtags: []trends.TagScore{{Tag: "fyp", Count: 4}}}
	require.Equal(t, 4, r.TagCount("fyp"))
	require.Zero(t, r.TagCount("dance"))
}

func TestTagCountCountsStoredPosts(t *testing.T) {
	t.Parallel()

	captions := []string{"#fyp #dance", "#dance #dance", "#fyp"}
	posts := make([]scrape.ScrapedPost, 0, len(captions))
	for i, caption := range captions {
		id := []string{"abcdef1", "abcdef2", "abcdef3"}[i]
		p, err := scrape.NewPost(scrape.PlatformYouTube, id, "https://www.youtube.com/shorts/"+id, scrape.PostFields{Caption: caption})
		require.NoError(t, err)
		posts = append(posts, p)
	}

	// dance is missing from TopHashtags but still present in two posts.
	r := RunReport{
		TopHashtags: []trends.TagScore{{Tag: "fyp", Count: 2}},
		Posts:       posts,
	}
	require.Equal(t, 2, r.TagCount("dance"))
	require.Equal(t, 2, r.TagCount("fyp"))
	require.Zero(t, r.TagCount("missing"))
}
