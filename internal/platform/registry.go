package platform

import (
	"fmt"

	"github.com/JakeFAU/trendscraper/internal/browser"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// VariantFor returns the variant registered for p.
func VariantFor(p scrape.Platform) (Variant, error) {
	switch p {
	case scrape.PlatformYouTube:
		return YouTube{}, nil
	case scrape.PlatformInstagram:
		return Instagram{}, nil
	case scrape.PlatformFacebook:
		return Facebook{}, nil
	default:
		return nil, fmt.Errorf("no scraper registered for platform %q", p)
	}
}

// New builds the scraper for a configured platform name.
func New(name string, driver browser.Driver, opts Options) (*Scraper, error) {
	p, err := scrape.ParsePlatform(name)
	if err != nil {
		return nil, err
	}
	v, err := VariantFor(p)
	if err != nil {
		return nil, err
	}
	return NewScraper(v, driver, opts)
}

// NewAll builds one scraper per name, failing on the first unknown name.
func NewAll(names []string, driver browser.Driver, opts Options) ([]*Scraper, error) {
	out := make([]*Scraper, 0, len(names))
	for _, name := range names {
		s, err := New(name, driver, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
