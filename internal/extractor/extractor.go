// Package extractor discovers candidate links in raw document markup.
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantfeed/linkharvest/internal/links"
)

// maxContextLen bounds the surrounding text captured per link.
const maxContextLen = 240

var downloadPathExpr = regexp.MustCompile(`(?i)/(download|getfile|attachment|document|report|research)s?/`)

// fileExtExpr matches static document extensions at the end of a URL path.
var fileExtExpr = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?|pptx?|csv)$`)

// Result carries the extracted candidates plus diagnostic counters. Dropped
// relatives are counted so the caller's totals never lose links silently.
type Result struct {
	Links           []links.CandidateLink
	DroppedRelative int
}

// Extractor parses markup and produces ordered, deduplicated candidates.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract scans markup for anchors and tracking pixels. Malformed markup is
// handled best-effort and never returns an error: whatever links can be
// recovered are returned, possibly none. Relative URLs are resolved against
// baseURL when provided and counted as dropped otherwise.
func (e *Extractor) Extract(markup, baseURL string) Result {
	return e.scan(markup, baseURL, links.DiscoveredBody, nil, 0)
}

// ExtractPortalLinks scans a fetched portal page, keeping only anchors that
// match download heuristics (file extension or download-ish path segment),
// capped at maxLinks. Discovered links are tagged accordingly.
func (e *Extractor) ExtractPortalLinks(markup, baseURL string, maxLinks int) Result {
	return e.scan(markup, baseURL, links.DiscoveredPortal, isDownloadCandidate, maxLinks)
}

func (e *Extractor) scan(
	markup, baseURL string,
	via links.DiscoveredVia,
	keep func(u *url.URL) bool,
	limit int,
) Result {
	var result Result

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		// net/html tolerates almost anything; a hard parse error yields
		// zero links rather than an extraction failure.
		return result
	}

	var base *url.URL
	if baseURL != "" {
		if parsed, parseErr := url.Parse(baseURL); parseErr == nil {
			base = parsed
		}
	}

	seen := make(map[string]struct{})
	position := 0

	collect := func(raw string, sel *goquery.Selection) bool {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(strings.ToLower(raw), "javascript:") ||
			strings.HasPrefix(strings.ToLower(raw), "mailto:") {
			return true
		}

		resolved, ok := resolve(raw, base)
		if !ok {
			result.DroppedRelative++
			return true
		}

		normalized, err := links.NormalizeURL(resolved)
		if err != nil {
			result.DroppedRelative++
			return true
		}

		if keep != nil {
			if u, parseErr := url.Parse(normalized); parseErr != nil || !keep(u) {
				return true
			}
		}

		if _, dup := seen[normalized]; dup {
			return true
		}
		seen[normalized] = struct{}{}

		result.Links = append(result.Links, links.CandidateLink{
			URL:           normalized,
			LinkText:      squeeze(sel.Text()),
			Context:       contextOf(sel),
			Position:      position,
			DiscoveredVia: via,
		})
		position++
		return limit <= 0 || len(result.Links) < limit
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		return collect(href, sel)
	})
	if limit <= 0 || len(result.Links) < limit {
		doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			src, _ := sel.Attr("src")
			return collect(src, sel)
		})
	}

	return result
}

// resolve makes raw absolute, using base when raw is relative.
func resolve(raw string, base *url.URL) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	if base == nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}

// contextOf returns bounded text surrounding the element: the nearest parent
// block's text, falling back to the element's own.
func contextOf(sel *goquery.Selection) string {
	text := squeeze(sel.Parent().Text())
	if text == "" {
		text = squeeze(sel.Text())
	}
	if len(text) > maxContextLen {
		text = text[:maxContextLen]
	}
	return text
}

func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isDownloadCandidate reports whether a portal anchor looks like a document
// download rather than navigation chrome.
func isDownloadCandidate(u *url.URL) bool {
	if fileExtExpr.MatchString(u.Path) {
		return true
	}
	return downloadPathExpr.MatchString(u.Path)
}
