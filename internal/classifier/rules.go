package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/quantfeed/linkharvest/internal/links"
)

var (
	staticFileExpr    = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?|pptx?|csv)$`)
	dynamicScriptExpr = regexp.MustCompile(`(?i)\.(aspx?|ashx|jsp|php|do|cgi)$`)
	downloadSegExpr   = regexp.MustCompile(`(?i)/(download|getfile|attachment)s?/`)
	researchPathExpr  = regexp.MustCompile(`(?i)/(research|report|publication|note|insight)s?(/|$)`)
	portalPathExpr    = regexp.MustCompile(`(?i)/(portal|library|publications|research-?hub|resources)(/|$)`)
	pixelPathExpr     = regexp.MustCompile(`(?i)/(pixel|beacon|track|open|impression)(\.|/|\?|$)`)
	multiPageExpr     = regexp.MustCompile(`(?i)/(viewer|flipbook|reader|wizard)(/|$)|[?&]page=`)
	formExpr          = regexp.MustCompile(`(?i)/(form|login|postback|gateway)(/|$)|[?&](postback|formid)=`)
)

// tokenParams are the query parameter names recognized as opaque auth tokens
// on research platform endpoints. Values are passed through unmodified.
var tokenParams = []string{"E", "token", "auth", "key"}

var trackingHosts = []string{
	"doubleclick.net",
	"googletagmanager.com",
	"google-analytics.com",
	"adsystem.com",
	"list-manage.com",
	"mailtrack.io",
	"sendgrid.net",
}

var trackingHostPrefixes = []string{"trk.", "track.", "click.", "pixel.", "links.", "email."}

var socialHosts = []string{
	"twitter.com",
	"x.com",
	"t.co",
	"facebook.com",
	"linkedin.com",
	"instagram.com",
	"youtube.com",
	"youtu.be",
}

// rule is one entry in the ordered first-match classification table.
type rule struct {
	name  string
	match func(u *url.URL, cand links.CandidateLink) (links.Category, float64, links.ContentKind, bool)
}

// rules are evaluated in order; the first match wins. Specificity sets
// confidence: exact extension 1.0, platform endpoint signature 0.70, path
// keyword 0.70-1.0, domain-level tracking/social 0.50.
var rules = []rule{
	{
		name: "static-file-extension",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			if m := staticFileExpr.FindString(u.Path); m != "" {
				return links.CategoryResearchReport, 1.0, kindForExtension(m), true
			}
			return "", 0, "", false
		},
	},
	{
		name: "research-endpoint-token",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			if dynamicScriptExpr.MatchString(u.Path) && hasAuthToken(u) {
				return links.CategoryResearchReport, 0.70, links.ContentUnknown, true
			}
			return "", 0, "", false
		},
	},
	{
		name: "download-path-keyword",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			if !downloadSegExpr.MatchString(u.Path) {
				return "", 0, "", false
			}
			// A file named in the query pins the content type exactly.
			if kind := kindFromQueryFile(u); kind != links.ContentUnknown {
				return links.CategoryResearchReport, 1.0, kind, true
			}
			return links.CategoryResearchReport, 0.85, links.ContentUnknown, true
		},
	},
	{
		name: "research-path-keyword",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			if researchPathExpr.MatchString(u.Path) && dynamicScriptExpr.MatchString(u.Path) {
				return links.CategoryResearchReport, 0.70, links.ContentUnknown, true
			}
			return "", 0, "", false
		},
	},
	{
		name: "portal-path",
		match: func(u *url.URL, cand links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			if portalPathExpr.MatchString(u.Path) {
				return links.CategoryPortal, 0.70, links.ContentHTML, true
			}
			lower := strings.ToLower(cand.LinkText)
			if researchPathExpr.MatchString(u.Path) &&
				(strings.Contains(lower, "view all") || strings.Contains(lower, "library")) {
				return links.CategoryPortal, 0.70, links.ContentHTML, true
			}
			return "", 0, "", false
		},
	},
	{
		name: "tracking-domain",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			host := strings.ToLower(u.Hostname())
			for _, t := range trackingHosts {
				if host == t || strings.HasSuffix(host, "."+t) {
					return links.CategoryTracking, 0.50, links.ContentUnknown, true
				}
			}
			for _, p := range trackingHostPrefixes {
				if strings.HasPrefix(host, p) {
					return links.CategoryTracking, 0.50, links.ContentUnknown, true
				}
			}
			if pixelPathExpr.MatchString(u.Path) {
				return links.CategoryTracking, 0.50, links.ContentUnknown, true
			}
			return "", 0, "", false
		},
	},
	{
		name: "social-domain",
		match: func(u *url.URL, _ links.CandidateLink) (links.Category, float64, links.ContentKind, bool) {
			host := strings.ToLower(u.Hostname())
			for _, s := range socialHosts {
				if host == s || strings.HasSuffix(host, "."+s) {
					return links.CategorySocial, 0.50, links.ContentUnknown, true
				}
			}
			return "", 0, "", false
		},
	},
}

func hasAuthToken(u *url.URL) bool {
	q := u.Query()
	for _, p := range tokenParams {
		if q.Get(p) != "" {
			return true
		}
	}
	return false
}

func kindForExtension(ext string) links.ContentKind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return links.ContentPDF
	case "doc", "docx":
		return links.ContentDocx
	case "htm", "html":
		return links.ContentHTML
	default:
		return links.ContentUnknown
	}
}

func kindFromQueryFile(u *url.URL) links.ContentKind {
	for _, values := range u.Query() {
		for _, v := range values {
			if m := staticFileExpr.FindString(v); m != "" {
				return kindForExtension(m)
			}
		}
	}
	return links.ContentUnknown
}
