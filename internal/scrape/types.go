package scrape

import (
	"fmt"
	"strings"
)

// Platform tags the source of a ScrapedPost.
type Platform string

// Supported platforms.
const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// ParsePlatform normalizes a user-supplied platform name.
func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformYouTube, PlatformInstagram, PlatformFacebook:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", raw)
	}
}

// ScrapedPost is the normalized record produced by every platform scraper.
// Optional counters are nil when not observed; nil never means zero.
type ScrapedPost struct {
	Platform   Platform `json:"platform"`
	PostID     string   `json:"post_id"`
	URL        string   `json:"url"`
	Caption    *string  `json:"caption,omitempty"`
	Hashtags   []string `json:"hashtags"`
	Audio      *string  `json:"audio,omitempty"`
	Views      *int64   `json:"views,omitempty"`
	Likes      *int64   `json:"likes,omitempty"`
	Comments   *int64   `json:"comments,omitempty"`
	UploadDate *string  `json:"upload_date,omitempty"`
}

// PostFields carries the optional attributes accepted by NewPost.
type PostFields struct {
	Caption    string
	Hashtags   []string
	Audio      string
	Views      *int64
	Likes      *int64
	Comments   *int64
	UploadDate string
}

// NewPost validates the required fields and returns an immutable post value.
// Slices and pointers are copied so later edits to fields cannot leak in.
func NewPost(platform Platform, postID, url string, fields PostFields) (ScrapedPost, error) {
	if platform == "" {
		return ScrapedPost{}, fmt.Errorf("platform is required")
	}
	if strings.TrimSpace(postID) == "" {
		return ScrapedPost{}, fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(url) == "" {
		return ScrapedPost{}, fmt.Errorf("url is required")
	}
	for name, v := range map[string]*int64{"views": fields.Views, "likes": fields.Likes, "comments": fields.Comments} {
		if v != nil && *v < 0 {
			return ScrapedPost{}, fmt.Errorf("%s must be >= 0", name)
		}
	}
	return ScrapedPost{
		Platform:   platform,
		PostID:     postID,
		URL:        url,
		Caption:    optionalString(fields.Caption),
		Hashtags:   append([]string{}, fields.Hashtags...),
		Audio:      optionalString(fields.Audio),
		Views:      copyCount(fields.Views),
		Likes:      copyCount(fields.Likes),
		Comments:   copyCount(fields.Comments),
		UploadDate: optionalString(fields.UploadDate),
	}, nil
}

// Key returns the natural dedup key used by downstream consumers.
func (p ScrapedPost) Key() string {
	return string(p.Platform) + ":" + p.PostID
}

// CaptionText returns the caption or an empty string.
func (p ScrapedPost) CaptionText() string {
	if p.Caption == nil {
		return ""
	}
	return *p.Caption
}

// RawCandidate is one listing entry read from the page before normalization.
type RawCandidate struct {
	// Index is the position of the entry in page order.
	Index int
	// Href is the raw link attribute; empty when the element had none.
	Href string
	// Label is an optional human-readable caption (aria-label or title).
	Label string
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func copyCount(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
