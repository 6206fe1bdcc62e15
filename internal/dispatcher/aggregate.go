package dispatcher

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/links"
)

// resultKey identifies one expected terminal result. Portal children share
// the parent URL space, so lineage is part of the key.
type resultKey struct {
	url        string
	portalURL  string
	childIndex int
}

// aggregate enforces total coverage and assembles the summary. The invariant
// is |candidates| == |results|: any candidate missing a result gets a
// synthetic failed record, logged loudly, never dropped.
func (p *Pipeline) aggregate(
	logger *zap.Logger,
	batchID string,
	classified []links.ClassifiedLink,
	children []links.ClassifiedLink,
	childLineage []childMeta,
	results []links.FetchResult,
) links.ProcessingSummary {
	expected := make(map[resultKey]links.ClassifiedLink, len(classified)+len(children))
	for _, cl := range classified {
		expected[resultKey{url: cl.URL}] = cl
	}
	for i, cl := range children {
		expected[resultKey{
			url:        cl.URL,
			portalURL:  childLineage[i].portalURL,
			childIndex: childLineage[i].childIndex,
		}] = cl
	}

	got := make(map[resultKey]struct{}, len(results))
	for _, r := range results {
		key := resultKey{url: r.URL, portalURL: r.PortalURL, childIndex: r.ChildIndex}
		if _, dup := got[key]; dup {
			logger.Error("duplicate result for candidate link",
				zap.String("url", r.URL), zap.String("portal_url", r.PortalURL))
		}
		got[key] = struct{}{}
	}

	for key, cl := range expected {
		if _, ok := got[key]; ok {
			continue
		}
		logger.Error("candidate link missing terminal result, repairing",
			zap.String("url", key.url), zap.String("portal_url", key.portalURL))
		results = append(results, links.FetchResult{
			URL:        cl.URL,
			Status:     links.StatusFailed,
			Category:   cl.Category,
			Tier:       cl.Tier,
			MethodUsed: links.MethodNone,
			Position:   cl.Position,
			ChildIndex: key.childIndex,
			PortalURL:  key.portalURL,
			Error:      &links.ErrorInfo{Reason: "result_missing", Stage: links.StageFetch},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Position != results[j].Position {
			return results[i].Position < results[j].Position
		}
		return results[i].ChildIndex < results[j].ChildIndex
	})

	summary := links.ProcessingSummary{
		BatchID:    batchID,
		ByCategory: make(map[links.Category]int),
		ByTier:     make(map[links.Tier]int),
		ByStatus:   make(map[links.Status]int),
		Results:    results,
	}
	for _, r := range results {
		summary.ByCategory[r.Category]++
		summary.ByTier[r.Tier]++
		summary.ByStatus[r.Status]++
		switch r.Status {
		case links.StatusSuccess:
			summary.Succeeded++
		case links.StatusSkipped:
			summary.Skipped++
		case links.StatusFailed:
			summary.Failed++
		}
	}

	if want, have := len(expected), len(results); want != have {
		// Should be unreachable after repair; kept as a tripwire.
		logger.Error(fmt.Sprintf("coverage invariant violated: %d candidates, %d results", want, have))
	}
	return summary
}
