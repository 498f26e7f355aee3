// Package preview resolves URLs mentioned in user input into link metadata
// that rides along with the prompt. Resolution is pluggable; the session wires
// a cached previewer so repeated links cost one fetch.
package preview

import (
	"context"
	"regexp"
	"strings"

	"github.com/Protocol-Lattice/go-session/pkg/cache"
	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// Previewer turns a URL into link metadata. Implementations should return an
// error only for transport failures; a page with no usable metadata yields a
// Link carrying just the URL.
type Previewer interface {
	Preview(ctx context.Context, url string) (transcript.Link, error)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractLinks finds the HTTP(S) URLs in free text, in order of appearance,
// deduplicated.
func ExtractLinks(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
	}
	return urls
}

// Cached decorates a Previewer with an LRU so a URL is resolved at most once
// per TTL window. Failures are not cached.
type Cached struct {
	inner Previewer
	lru   *cache.LRU[transcript.Link]
}

// NewCached wraps inner with the given cache.
func NewCached(inner Previewer, lru *cache.LRU[transcript.Link]) *Cached {
	return &Cached{inner: inner, lru: lru}
}

var _ Previewer = (*Cached)(nil)

func (c *Cached) Preview(ctx context.Context, url string) (transcript.Link, error) {
	key := cache.HashKey(url)
	if link, ok := c.lru.Get(key); ok {
		return link, nil
	}
	link, err := c.inner.Preview(ctx, url)
	if err != nil {
		return transcript.Link{}, err
	}
	c.lru.Set(key, link)
	return link, nil
}

// Resolve previews every URL in the input and returns the links that
// resolved. Failed previews are skipped rather than failing the turn; a
// missing preview only means less context for the model.
func Resolve(ctx context.Context, p Previewer, input string) []transcript.Link {
	urls := ExtractLinks(input)
	if len(urls) == 0 || p == nil {
		return nil
	}
	links := make([]transcript.Link, 0, len(urls))
	for _, url := range urls {
		link, err := p.Preview(ctx, url)
		if err != nil {
			continue
		}
		if link.URL == "" {
			link.URL = url
		}
		links = append(links, link)
	}
	return links
}
