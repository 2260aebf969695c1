package scrape

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPostCopiesInputs(t *testing.T) {
	t.Parallel()

	views := int64(10)
	tags := []string{"dance"}
	post, err := NewPost(PlatformYouTube, "abc123", "https://www.youtube.com/shorts/abc123", PostFields{
		Caption:  "  hello #dance ",
		Hashtags: tags,
		Views:    &views,
	})
	require.NoError(t, err)

	views = 99
	tags[0] = "mutated"

	require.Equal(t, int64(10), *post.Views)
	require.Equal(t, []string{"dance"}, post.Hashtags)
	require.Equal(t, "hello #dance", post.CaptionText())
	require.Nil(t, post.Likes)
	require.Nil(t, post.Audio)
	require.Equal(t, "youtube:abc123", post.Key())
}

func TestNewPostValidation(t *testing.T) {
	t.Parallel()

	negative := int64(-1)
	cases := []struct {
		name     string
		platform Platform
		id       string
		url      string
		fields   PostFields
	}{
		{"missing platform", "", "id", "https://x", PostFields{}},
		{"missing id", PlatformInstagram, " ", "https://x", PostFields{}},
		{"missing url", PlatformInstagram, "id", "", PostFields{}},
		{"negative likes", PlatformFacebook, "id", "https://x", PostFields{Likes: &negative}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPost(tc.platform, tc.id, tc.url, tc.fields)
			require.Error(t, err)
		})
	}
}

func TestNewPostEmptyHashtagsNotNil(t *testing.T) {
	t.Parallel()

	post, err := NewPost(PlatformFacebook, "1", "https://www.facebook.com/reel/1", PostFields{})
	require.NoError(t, err)
	require.NotNil(t, post.Hashtags)
	require.Empty(t, post.Hashtags)
	require.Nil(t, post.Caption)
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, err := ParsePlatform(" YouTube ")
	require.NoError(t, err)
	require.Equal(t, PlatformYouTube, p)

	_, err = ParsePlatform("myspace")
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	invalid := &NavigationError{Platform: PlatformInstagram, Op: OpValidate, Err: fmt.Errorf("%w: empty", ErrInvalidNiche)}
	require.False(t, IsRetryable(invalid))
	require.True(t, errors.Is(invalid, ErrInvalidInput))

	transient := &NavigationError{Platform: PlatformYouTube, Op: OpGoto, URL: "https://www.youtube.com", Err: errors.New("timeout")}
	require.True(t, IsRetryable(transient))
	require.True(t, IsRetryable(&LaunchError{Stage: StageBrowser, Err: errors.New("no chrome")}))
	require.False(t, IsRetryable(nil))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	launch := &LaunchError{Stage: StageContext, Err: errors.New("boom")}
	require.Equal(t, "launch context: boom", launch.Error())

	nav := &NavigationError{Platform: PlatformYouTube, Op: OpGoto, URL: "https://y", Err: errors.New("down")}
	require.Equal(t, "youtube goto https://y: down", nav.Error())

	warn := ExtractionWarning{Platform: PlatformInstagram, Index: 2, Href: "/x", Err: ErrMalformedCandidate}
	require.ErrorIs(t, warn, ErrMalformedCandidate)
}
