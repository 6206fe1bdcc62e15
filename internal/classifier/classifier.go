// Package classifier assigns categories and fetch tiers to candidate links.
// Both stages are total functions: every candidate receives exactly one
// category and one tier, so no link can drop out of the pipeline here.
package classifier

import (
	"net/url"

	"github.com/quantfeed/linkharvest/internal/links"
)

// ConfidencePolicy governs how portal-discovered links are scored relative
// to the portal that revealed them.
type ConfidencePolicy string

// Supported portal confidence policies.
const (
	// ConfidenceInheritMin caps a child's confidence at its portal's.
	ConfidenceInheritMin ConfidencePolicy = "inherit_min"
	// ConfidenceIndependent scores children purely on their own rules.
	ConfidenceIndependent ConfidencePolicy = "independent"
)

const (
	defaultConfidence = 0.50
	defaultRule       = "default-other"
)

// Classifier evaluates the ordered rule table against each link.
type Classifier struct {
	portalPolicy ConfidencePolicy
}

// New builds a Classifier. An empty policy defaults to inherit_min.
func New(portalPolicy ConfidencePolicy) *Classifier {
	if portalPolicy == "" {
		portalPolicy = ConfidenceInheritMin
	}
	return &Classifier{portalPolicy: portalPolicy}
}

// Classify assigns a category, tier, confidence, and expected content kind.
// It never fails: unmatched links resolve to category other, tier 6.
func (c *Classifier) Classify(cand links.CandidateLink) links.ClassifiedLink {
	classified := links.ClassifiedLink{
		CandidateLink: cand,
		Category:      links.CategoryOther,
		Confidence:    defaultConfidence,
		ContentKind:   links.ContentUnknown,
		Rule:          defaultRule,
	}

	u, err := url.Parse(cand.URL)
	if err == nil {
		for _, r := range rules {
			if category, confidence, kind, ok := r.match(u, cand); ok {
				classified.Category = category
				classified.Confidence = confidence
				classified.ContentKind = kind
				classified.Rule = r.name
				break
			}
		}
	}

	classified.Tier = c.tierFor(classified, u)
	return classified
}

// ClassifyAll classifies every candidate in order.
func (c *Classifier) ClassifyAll(cands []links.CandidateLink) []links.ClassifiedLink {
	out := make([]links.ClassifiedLink, 0, len(cands))
	for _, cand := range cands {
		out = append(out, c.Classify(cand))
	}
	return out
}

// ClassifyChild classifies a portal-discovered link, applying the configured
// confidence policy against the originating portal's score.
func (c *Classifier) ClassifyChild(parent links.ClassifiedLink, cand links.CandidateLink) links.ClassifiedLink {
	child := c.Classify(cand)
	if c.portalPolicy == ConfidenceInheritMin && parent.Confidence < child.Confidence {
		child.Confidence = parent.Confidence
	}
	return child
}

// tierFor is the stage-two total function. Portal-irrelevant categories are
// tier 6 (skipped, no network call); research and portal links get the
// cheapest strategy their URL shape allows.
func (c *Classifier) tierFor(classified links.ClassifiedLink, u *url.URL) links.Tier {
	switch classified.Category {
	case links.CategoryTracking, links.CategorySocial, links.CategoryOther:
		return links.TierSkip
	}

	if u == nil {
		return links.TierSkip
	}

	switch {
	case staticFileExpr.MatchString(u.Path):
		return links.TierStaticFile
	// Interaction markers outrank the token shortcut: a viewer or form
	// endpoint needs automation even when the URL carries a token.
	case multiPageExpr.MatchString(u.Path) || multiPageExpr.MatchString("?"+u.RawQuery):
		return links.TierMultiPage
	case formExpr.MatchString(u.Path) || formExpr.MatchString("?"+u.RawQuery):
		return links.TierFormSubmit
	case dynamicScriptExpr.MatchString(u.Path) && hasAuthToken(u):
		return links.TierAuthEndpoint
	case dynamicScriptExpr.MatchString(u.Path):
		return links.TierRendered
	default:
		// Plain paths default to the cheapest strategy that works.
		return links.TierStaticFile
	}
}
