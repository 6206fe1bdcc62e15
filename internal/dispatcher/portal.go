package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
	"github.com/quantfeed/linkharvest/internal/progress"
)

// expandPortals runs the second pass: successfully fetched portal pages are
// re-scanned for download-scoped links, which are classified under the
// configured confidence policy and dispatched through the same worker pool.
// One hop only; children never expand further. Returns the child
// classifications with their portal lineage, their results, and the count of
// relative links dropped during portal extraction.
func (p *Pipeline) expandPortals(
	ctx context.Context,
	batchID string,
	logger *zap.Logger,
	classified []links.ClassifiedLink,
	outcomes []linkOutcome,
) ([]links.ClassifiedLink, []childMeta, []links.FetchResult, int) {
	seen := make(map[string]struct{}, len(classified))
	for _, cl := range classified {
		seen[cl.URL] = struct{}{}
	}

	var children []links.ClassifiedLink
	var meta []childMeta
	dropped := 0
	portals := 0

	for i, cl := range classified {
		if cl.Category != links.CategoryPortal {
			continue
		}
		if outcomes[i].result.Status != links.StatusSuccess || len(outcomes[i].body) == 0 {
			continue
		}
		if portals >= p.cfg.MaxPortalsPerBatch {
			logger.Warn("portal budget exhausted, skipping expansion",
				zap.String("portal_url", cl.URL),
				zap.Int("max_per_batch", p.cfg.MaxPortalsPerBatch))
			continue
		}
		portals++

		found := p.deps.Extractor.ExtractPortalLinks(string(outcomes[i].body), cl.URL, p.cfg.MaxLinksPerPortal)
		dropped += found.DroppedRelative

		childIndex := 0
		for _, cand := range found.Links {
			if _, dup := seen[cand.URL]; dup {
				continue
			}
			seen[cand.URL] = struct{}{}
			childIndex++

			// Children inherit the portal's document position so the
			// aggregator keeps them adjacent to their source.
			cand.Position = cl.Position
			cand.DiscoveredVia = links.DiscoveredPortal
			child := p.deps.Classifier.ClassifyChild(cl, cand)
			children = append(children, child)
			meta = append(meta, childMeta{portalURL: cl.URL, childIndex: childIndex})
		}

		metrics.ObservePortalLinks(childIndex)
		p.emit(progress.Event{
			BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StagePortalExpanded,
			URL: cl.URL, Host: links.Host(cl.URL), Category: cl.Category, Tier: cl.Tier,
			Bytes: int64(childIndex),
		})
	}

	if len(children) == 0 {
		return nil, nil, nil, dropped
	}

	childOutcomes := p.dispatch(ctx, batchID, children, meta)
	results := make([]links.FetchResult, 0, len(childOutcomes))
	for _, o := range childOutcomes {
		results = append(results, o.result)
	}
	return children, meta, results, dropped
}
