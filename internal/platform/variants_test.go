package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trendscraper/internal/browser/browsertest"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

func TestListingURLs(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		variant  Variant
		niche    string
		expected string
	}{
		{"youtube", YouTube{}, "street dance", "https://www.youtube.com/results?search_query=street+dance+shorts"},
		{"instagram", Instagram{}, "#Dance", "https://www.instagram.com/explore/tags/dance/"},
		{"facebook", Facebook{}, "cooking_tips", "https://www.facebook.com/hashtag/cooking_tips"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.variant.ListingURL(tc.niche)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestBuildPost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		variant Variant
		href    string
		id      string
		url     string
		wantErr bool
	}{
		{"youtube short", YouTube{}, "/shorts/AbC_-12", "AbC_-12", "https://www.youtube.com/shorts/AbC_-12", false},
		{"youtube watch", YouTube{}, "/watch?v=dQw4w9WgXcQ&t=1", "dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=1", false},
		{"youtube short id too short", YouTube{}, "/shorts/ab", "", "", true},
		{"youtube channel", YouTube{}, "/@creator", "", "", true},
		{"instagram reel", Instagram{}, "/reel/Cx1yZ2/", "Cx1yZ2", "https://www.instagram.com/reel/Cx1yZ2/", false},
		{"instagram post", Instagram{}, "https://www.instagram.com/p/Bq9/", "Bq9", "https://www.instagram.com/p/Bq9/", false},
		{"instagram profile", Instagram{}, "/someone/", "", "", true},
		{"facebook reel", Facebook{}, "/reel/123456789?s=tag", "123456789", "https://www.facebook.com/reel/123456789", false},
		{"facebook non numeric", Facebook{}, "/reel/abc", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			post, err := tc.variant.BuildPost(scrape.RawCandidate{Href: tc.href, Label: "caption"})
			if tc.wantErr {
				require.ErrorIs(t, err, scrape.ErrMalformedCandidate)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.variant.Platform(), post.Platform)
			require.Equal(t, tc.id, post.PostID)
			require.Equal(t, tc.url, post.URL)
			require.Equal(t, "caption", post.CaptionText())
		})
	}
}

func TestExtractCandidatesUsesVariantSelector(t *testing.T) {
	t.Parallel()

	d := &browsertest.Driver{Elements: map[string][]browsertest.Element{
		"article a":               {browsertest.Anchor("/reel/one/")},
		`a[href*="/reel/"]`:       {browsertest.Anchor("/reel/1"), browsertest.Anchor("/reel/2")},
		"a#thumbnail":             {},
		"unrelated-selector-noop": {browsertest.Anchor("/x")},
	}}

	for _, tc := range []struct {
		variant Variant
		want    int
	}{
		{Instagram{}, 1},
		{Facebook{}, 2},
		{YouTube{}, 0},
	} {
		s := newTestScraper(t, tc.variant, d, Options{})
		posts, err := s.ScrapeRecent(context.Background(), "dance", 10)
		require.NoError(t, err)
		require.Len(t, posts, tc.want, tc.variant.Platform())
	}
	require.True(t, d.Counts().Balanced())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	d := &browsertest.Driver{}
	s, err := New(" Instagram ", d, Options{})
	require.NoError(t, err)
	require.Equal(t, scrape.PlatformInstagram, s.Platform())

	_, err = New("tiktok", d, Options{})
	require.Error(t, err)

	all, err := NewAll([]string{"youtube", "facebook"}, d, Options{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = NewAll([]string{"youtube", "myspace"}, d, Options{})
	require.Error(t, err)
}
