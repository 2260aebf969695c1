package platform

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/trendscraper/internal/browser"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

var (
	hashtagNiche   = regexp.MustCompile(`^#?[\p{L}\p{N}_]+$`)
	youtubeShortID = regexp.MustCompile(`^/shorts/([A-Za-z0-9_-]{6,})`)
	youtubeVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
	instagramCode  = regexp.MustCompile(`/(?:reel|p)/([A-Za-z0-9_-]+)/?`)
	facebookReelID = regexp.MustCompile(`/reel/(\d+)`)
)

// YouTube scrapes YouTube Shorts search results.
type YouTube struct{}

func (YouTube) Platform() scrape.Platform { return scrape.PlatformYouTube }

func (YouTube) ListingURL(niche string) (string, error) {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(niche) + "+shorts", nil
}

func (YouTube) ExtractCandidates(ctx context.Context, page browser.Page, limit int, timeout time.Duration) ([]scrape.RawCandidate, []scrape.ExtractionWarning, error) {
	return queryCandidates(ctx, scrape.PlatformYouTube, page, "a#thumbnail", limit, timeout)
}

// BuildPost accepts /shorts/<id> links and watch links carrying v=<id>.
func (YouTube) BuildPost(c scrape.RawCandidate) (scrape.ScrapedPost, error) {
	u, err := url.Parse(c.Href)
	if err != nil {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: %v", scrape.ErrMalformedCandidate, err)
	}
	var id string
	if m := youtubeShortID.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else if v := u.Query().Get("v"); youtubeVideoID.MatchString(v) {
		id = v
	}
	if id == "" {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: no video id in %q", scrape.ErrMalformedCandidate, c.Href)
	}
	return scrape.NewPost(scrape.PlatformYouTube, id, absolute("https://www.youtube.com", u), scrape.PostFields{Caption: c.Label})
}

// Instagram scrapes an Instagram hashtag explore page.
type Instagram struct{}

func (Instagram) Platform() scrape.Platform { return scrape.PlatformInstagram }

func (Instagram) ListingURL(niche string) (string, error) {
	tag, err := hashtagSafe(niche)
	if err != nil {
		return "", err
	}
	return "https://www.instagram.com/explore/tags/" + tag + "/", nil
}

func (Instagram) ExtractCandidates(ctx context.Context, page browser.Page, limit int, timeout time.Duration) ([]scrape.RawCandidate, []scrape.ExtractionWarning, error) {
	return queryCandidates(ctx, scrape.PlatformInstagram, page, "article a", limit, timeout)
}

// BuildPost accepts /reel/<code>/ and /p/<code>/ links.
func (Instagram) BuildPost(c scrape.RawCandidate) (scrape.ScrapedPost, error) {
	u, err := url.Parse(c.Href)
	if err != nil {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: %v", scrape.ErrMalformedCandidate, err)
	}
	m := instagramCode.FindStringSubmatch(u.Path)
	if m == nil {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: no shortcode in %q", scrape.ErrMalformedCandidate, c.Href)
	}
	return scrape.NewPost(scrape.PlatformInstagram, m[1], absolute("https://www.instagram.com", u), scrape.PostFields{Caption: c.Label})
}

// Facebook scrapes reels linked from a Facebook hashtag page.
type Facebook struct{}

func (Facebook) Platform() scrape.Platform { return scrape.PlatformFacebook }

func (Facebook) ListingURL(niche string) (string, error) {
	tag, err := hashtagSafe(niche)
	if err != nil {
		return "", err
	}
	return "https://www.facebook.com/hashtag/" + tag, nil
}

func (Facebook) ExtractCandidates(ctx context.Context, page browser.Page, limit int, timeout time.Duration) ([]scrape.RawCandidate, []scrape.ExtractionWarning, error) {
	return queryCandidates(ctx, scrape.PlatformFacebook, page, `a[href*="/reel/"]`, limit, timeout)
}

// BuildPost accepts /reel/<digits> links.
func (Facebook) BuildPost(c scrape.RawCandidate) (scrape.ScrapedPost, error) {
	u, err := url.Parse(c.Href)
	if err != nil {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: %v", scrape.ErrMalformedCandidate, err)
	}
	m := facebookReelID.FindStringSubmatch(u.Path)
	if m == nil {
		return scrape.ScrapedPost{}, fmt.Errorf("%w: no reel id in %q", scrape.ErrMalformedCandidate, c.Href)
	}
	return scrape.NewPost(scrape.PlatformFacebook, m[1], "https://www.facebook.com/reel/"+m[1], scrape.PostFields{Caption: c.Label})
}

// hashtagSafe returns niche as a lowercase tag without the leading '#'.
func hashtagSafe(niche string) (string, error) {
	niche = strings.TrimSpace(niche)
	if !hashtagNiche.MatchString(niche) {
		return "", fmt.Errorf("%w: %q is not a valid hashtag", scrape.ErrInvalidNiche, niche)
	}
	return strings.ToLower(strings.TrimPrefix(niche, "#")), nil
}

func absolute(base string, u *url.URL) string {
	if u.IsAbs() {
		return u.String()
	}
	b, _ := url.Parse(base)
	return b.ResolveReference(u).String()
}
