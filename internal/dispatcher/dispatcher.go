// Package dispatcher runs the full pipeline for one document: extract,
// classify, fetch by tier, dedup, extract content, and aggregate. Every
// candidate link leaves with exactly one terminal result.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/cache"
	"github.com/quantfeed/linkharvest/internal/classifier"
	"github.com/quantfeed/linkharvest/internal/extract"
	"github.com/quantfeed/linkharvest/internal/extractor"
	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
	"github.com/quantfeed/linkharvest/internal/policy/ratelimit"
	"github.com/quantfeed/linkharvest/internal/policy/retry"
	"github.com/quantfeed/linkharvest/internal/progress"
)

// Config tunes batch execution.
type Config struct {
	// Workers bounds the task pool draining the submit channel.
	Workers int
	// BatchDeadline bounds one Process call. Zero disables the deadline.
	BatchDeadline time.Duration
	// CancelInflightOnDeadline cancels running fetches when the deadline
	// fires. When false, started fetches run to completion and only
	// not-yet-started links are skipped.
	CancelInflightOnDeadline bool
	// MaxPortalsPerBatch and MaxLinksPerPortal bound portal expansion.
	MaxPortalsPerBatch int
	MaxLinksPerPortal  int
	// PublishTopic names the completion topic. Empty disables publishing.
	PublishTopic string
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	Extractor   *extractor.Extractor
	Classifier  *classifier.Classifier
	Lightweight links.Fetcher
	Automation  links.Fetcher
	Governor    *ratelimit.Governor
	Retries     *retry.Policy
	Cache       *cache.Cache
	Content     extract.Extractor
	Publisher   links.Publisher
	Emitter     progress.Emitter
	IDs         links.IDGenerator
	Clock       links.Clock
	Logger      *zap.Logger
}

// Pipeline processes documents end to end.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates the wiring and builds a Pipeline. The Publisher is optional;
// everything else is required.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Lightweight == nil:
		return nil, fmt.Errorf("lightweight fetcher is required")
	case deps.Automation == nil:
		return nil, fmt.Errorf("automation fetcher is required")
	case deps.Governor == nil:
		return nil, fmt.Errorf("governor is required")
	case deps.Retries == nil:
		return nil, fmt.Errorf("retry policy is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	case deps.Content == nil:
		return nil, fmt.Errorf("content extractor is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxPortalsPerBatch <= 0 {
		cfg.MaxPortalsPerBatch = 3
	}
	if cfg.MaxLinksPerPortal <= 0 {
		cfg.MaxLinksPerPortal = 25
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// linkOutcome pairs a terminal result with the downloaded body so portal
// expansion can re-extract without a second fetch.
type linkOutcome struct {
	result links.FetchResult
	body   []byte
}

// Process runs one document through the pipeline and returns a complete
// summary: one result per candidate link, portal children included.
func (p *Pipeline) Process(ctx context.Context, doc links.Document) (links.ProcessingSummary, error) {
	if strings.TrimSpace(doc.Markup) == "" {
		return links.ProcessingSummary{}, fmt.Errorf("document markup is required")
	}
	batchID, err := p.deps.IDs.NewID()
	if err != nil {
		return links.ProcessingSummary{}, fmt.Errorf("generate batch id: %w", err)
	}
	start := p.deps.Clock.Now()
	logger := p.deps.Logger.With(zap.String("batch_id", batchID))

	extracted := p.deps.Extractor.Extract(doc.Markup, doc.BaseURL)
	classified := p.deps.Classifier.ClassifyAll(extracted.Links)

	p.emit(progress.Event{BatchID: batchID, TS: start, Stage: progress.StageBatchStart})
	for _, cl := range classified {
		metrics.ObserveClassification(string(cl.Category), int(cl.Tier))
		p.emit(progress.Event{
			BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageLinkClassified,
			URL: cl.URL, Host: links.Host(cl.URL), Category: cl.Category, Tier: cl.Tier,
		})
	}

	batchCtx := ctx
	if p.cfg.BatchDeadline > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, p.cfg.BatchDeadline)
		defer cancel()
	}

	outcomes := p.dispatch(batchCtx, batchID, classified, nil)
	children, lineage, childResults, droppedByPortals := p.expandPortals(batchCtx, batchID, logger, classified, outcomes)

	results := make([]links.FetchResult, 0, len(outcomes)+len(childResults))
	for _, o := range outcomes {
		results = append(results, o.result)
	}
	results = append(results, childResults...)

	summary := p.aggregate(logger, batchID, classified, children, lineage, results)
	summary.Extracted = len(extracted.Links)
	summary.Discovered = len(children)
	summary.DroppedRelative = extracted.DroppedRelative + droppedByPortals
	summary.Duration = p.deps.Clock.Now().Sub(start)
	summary.Meta = doc.Meta

	outcome := "complete"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	metrics.ObserveBatch(outcome)
	p.emit(progress.Event{
		BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageBatchDone,
		Dur: summary.Duration, Note: outcome,
	})
	p.publish(ctx, logger, summary)

	logger.Info("batch complete",
		zap.Int("extracted", summary.Extracted),
		zap.Int("discovered", summary.Discovered),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// childMeta carries portal lineage applied to child results after dispatch.
type childMeta struct {
	portalURL  string
	childIndex int
}

// dispatch fans the classified links across the worker pool and returns one
// outcome per link, index-aligned with the input.
func (p *Pipeline) dispatch(ctx context.Context, batchID string, items []links.ClassifiedLink, meta []childMeta) []linkOutcome {
	out := make([]linkOutcome, len(items))
	if len(items) == 0 {
		return out
	}
	tasks := make(chan int, len(items))
	var wg sync.WaitGroup
	workers := p.cfg.Workers
	if workers > len(items) {
		workers = len(items)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				out[i] = p.processLink(ctx, batchID, items[i])
				if meta != nil {
					out[i].result.PortalURL = meta[i].portalURL
					out[i].result.ChildIndex = meta[i].childIndex
				}
			}
		}()
	}
	for i := range items {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return out
}

// processLink produces the terminal result for one classified link.
func (p *Pipeline) processLink(ctx context.Context, batchID string, cl links.ClassifiedLink) linkOutcome {
	result := links.FetchResult{
		URL:        cl.URL,
		Category:   cl.Category,
		Tier:       cl.Tier,
		MethodUsed: links.MethodNone,
		Position:   cl.Position,
	}

	// Tier 6 is disposed synchronously; the reason names the category so
	// downstream consumers can tell tracking skips from social ones.
	if cl.Tier == links.TierSkip {
		result.Status = links.StatusSkipped
		result.Error = &links.ErrorInfo{
			Reason: "category:" + string(cl.Category),
			Stage:  links.StageClassification,
		}
		return linkOutcome{result: result}
	}

	host := links.Host(cl.URL)

	// URL-recency layer: zero network within the freshness window.
	if doc, hit := p.deps.Cache.Lookup(ctx, cl.URL); hit {
		result.Status = links.StatusSuccess
		result.CacheHit = links.CacheLayerURL
		result.ContentHash = doc.ContentHash
		result.ContentType = doc.ContentType
		result.ExtractedText = doc.ExtractedText
		result.ExtractionStatus = doc.ExtractionStatus
		p.emit(progress.Event{
			BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageCacheHit,
			URL: cl.URL, Host: host, Category: cl.Category, Tier: cl.Tier,
		})
		return linkOutcome{result: result}
	}

	if ctx.Err() != nil {
		return linkOutcome{result: skippedOnDeadline(result)}
	}

	fetcher := p.deps.Lightweight
	method := links.MethodLightweight
	acquire := p.deps.Governor.AcquireLightweight
	if cl.Tier >= links.TierRendered && cl.Tier <= links.TierMultiPage {
		fetcher = p.deps.Automation
		method = links.MethodAutomation
		acquire = p.deps.Governor.AcquireAutomation
	}

	release, err := acquire(ctx, host)
	if err != nil {
		// The slot wait lost to the batch deadline; the fetch never started.
		return linkOutcome{result: skippedOnDeadline(result)}
	}
	defer release()

	fetchCtx := ctx
	if !p.cfg.CancelInflightOnDeadline {
		fetchCtx = context.WithoutCancel(ctx)
	}

	p.emit(progress.Event{
		BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageFetchStart,
		URL: cl.URL, Host: host, Category: cl.Category, Tier: cl.Tier,
	})

	resp, retries, err := p.fetchWithRetries(fetchCtx, batchID, fetcher, cl)
	result.RetryCount = retries
	result.MethodUsed = method
	result.Duration = resp.Duration

	if err != nil {
		result.Status = links.StatusFailed
		result.Error = &links.ErrorInfo{Reason: failureReason(err), Stage: links.StageFetch}
		metrics.ObserveFetch(string(method), string(links.StatusFailed), resp.Duration)
		p.emit(progress.Event{
			BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageFetchDone,
			URL: cl.URL, Host: host, Category: cl.Category, Tier: cl.Tier,
			Status: links.StatusFailed, Dur: resp.Duration, Note: err.Error(),
		})
		return linkOutcome{result: result}
	}

	result.Status = links.StatusSuccess
	result.BytesLen = len(resp.Body)
	result.ContentType = resp.ContentType
	p.admitAndExtract(fetchCtx, cl.URL, resp, &result)

	metrics.ObserveFetch(string(method), string(links.StatusSuccess), resp.Duration)
	p.emit(progress.Event{
		BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageFetchDone,
		URL: cl.URL, Host: host, Category: cl.Category, Tier: cl.Tier,
		Status: links.StatusSuccess, Bytes: int64(len(resp.Body)), Dur: resp.Duration,
	})
	return linkOutcome{result: result, body: resp.Body}
}

// fetchWithRetries runs the retry loop and reports how many retries it spent.
func (p *Pipeline) fetchWithRetries(ctx context.Context, batchID string, fetcher links.Fetcher, cl links.ClassifiedLink) (links.FetchResponse, int, error) {
	hasAuthToken := cl.Tier == links.TierAuthEndpoint
	request := links.FetchRequest{BatchID: batchID, URL: cl.URL, Tier: cl.Tier}

	var resp links.FetchResponse
	var err error
	retries := 0
	for {
		metrics.IncActiveFetches()
		resp, err = fetcher.Fetch(ctx, request)
		metrics.DecActiveFetches()
		if err == nil || errors.Is(err, links.ErrAutomationUnavailable) {
			return resp, retries, err
		}
		if !p.deps.Retries.ShouldRetry(err, retries, hasAuthToken) {
			return resp, retries, err
		}
		metrics.ObserveRetry()
		p.emit(progress.Event{
			BatchID: batchID, TS: p.deps.Clock.Now(), Stage: progress.StageFetchRetry,
			URL: cl.URL, Host: links.Host(cl.URL), Category: cl.Category, Tier: cl.Tier,
			Note: err.Error(),
		})
		if waitErr := p.deps.Retries.Wait(ctx, retries); waitErr != nil {
			return resp, retries, err
		}
		retries++
	}
}

// admitAndExtract runs the content layer and the extractor adapter. Download
// success and extraction success are tracked independently: an extraction
// failure keeps status=success with stage=extraction error info.
func (p *Pipeline) admitAndExtract(ctx context.Context, url string, resp links.FetchResponse, result *links.FetchResult) {
	hash, existing, hit, err := p.deps.Cache.Admit(ctx, url, resp.Body)
	if err != nil {
		p.deps.Logger.Warn("cache admit failed", zap.String("url", url), zap.Error(err))
	}
	result.ContentHash = hash
	if hit {
		result.CacheHit = links.CacheLayerContent
		result.ExtractedText = existing.ExtractedText
		result.ExtractionStatus = existing.ExtractionStatus
		return
	}

	doc := links.DownloadedDocument{
		ContentHash: hash,
		ContentType: resp.ContentType,
	}
	extraction, extractErr := p.deps.Content.Extract(ctx, resp.Body, resp.ContentType)
	if extractErr != nil {
		doc.ExtractionStatus = links.ExtractionFailed
		result.ExtractionStatus = links.ExtractionFailed
		result.Error = &links.ErrorInfo{Reason: failureReason(extractErr), Stage: links.StageExtraction}
	} else {
		doc.ExtractedText = extraction.Text
		doc.ExtractionStatus = links.ExtractionOK
		result.ExtractedText = extraction.Text
		result.ExtractionStatus = links.ExtractionOK
	}
	if hash == "" {
		return
	}
	if _, err := p.deps.Cache.Commit(ctx, url, resp.Body, doc); err != nil {
		p.deps.Logger.Warn("cache commit failed", zap.String("url", url), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, summary links.ProcessingSummary) {
	if p.deps.Publisher == nil || p.cfg.PublishTopic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := p.deps.Publisher.Publish(pubCtx, p.cfg.PublishTopic, summary); err != nil {
		logger.Warn("publish batch summary failed", zap.Error(err))
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	p.deps.Emitter.Emit(evt)
}

func skippedOnDeadline(result links.FetchResult) links.FetchResult {
	result.Status = links.StatusSkipped
	result.MethodUsed = links.MethodNone
	result.Error = &links.ErrorInfo{Reason: "batch_timeout", Stage: links.StageBatchTimeout}
	return result
}

// failureReason maps an error to a short machine-readable reason.
func failureReason(err error) string {
	var httpErr *links.HTTPError
	switch {
	case errors.Is(err, links.ErrAutomationUnavailable):
		return "automation_unavailable"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_status_%d", httpErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		reason := err.Error()
		if len(reason) > 120 {
			reason = reason[:120]
		}
		return reason
	}
}
