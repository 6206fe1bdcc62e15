package links

import (
	"net/http"
	"time"
)

// DiscoveredVia records where a candidate link was found.
type DiscoveredVia string

// Discovery sources.
const (
	DiscoveredBody   DiscoveredVia = "body"
	DiscoveredPortal DiscoveredVia = "portal"
)

// CandidateLink is a URL extracted from a document prior to classification.
// Immutable after creation; one per unique normalized URL per document.
type CandidateLink struct {
	URL           string        `json:"url"`
	LinkText      string        `json:"link_text,omitempty"`
	Context       string        `json:"context,omitempty"`
	Position      int           `json:"position"`
	DiscoveredVia DiscoveredVia `json:"discovered_via"`
}

// Category is the stage-one classification bucket.
type Category string

// Categories assigned by the classifier. Every link receives exactly one.
const (
	CategoryResearchReport Category = "research_report"
	CategoryPortal         Category = "portal"
	CategoryTracking       Category = "tracking"
	CategorySocial         Category = "social"
	CategoryOther          Category = "other"
)

// Tier encodes the fetch strategy for a classified link.
type Tier int

// Tiers 1-2 use the lightweight fetcher, 3-5 require automation, 6 is
// disposed as skipped without any network call.
const (
	TierStaticFile   Tier = 1
	TierAuthEndpoint Tier = 2
	TierRendered     Tier = 3
	TierFormSubmit   Tier = 4
	TierMultiPage    Tier = 5
	TierSkip         Tier = 6
)

// ContentKind is the expected payload type inferred at classification time.
type ContentKind string

// Expected content kinds.
const (
	ContentPDF     ContentKind = "pdf"
	ContentHTML    ContentKind = "html"
	ContentDocx    ContentKind = "docx"
	ContentUnknown ContentKind = "unknown"
)

// ClassifiedLink pairs a candidate with its category, tier, and confidence.
// One-to-one with its source CandidateLink; immutable.
type ClassifiedLink struct {
	CandidateLink
	Category    Category    `json:"category"`
	Tier        Tier        `json:"tier"`
	Confidence  float64     `json:"confidence"`
	ContentKind ContentKind `json:"expected_content_type"`
	Rule        string      `json:"rule,omitempty"`
}

// Status is the terminal disposition of a link.
type Status string

// Terminal statuses. Every candidate link reaches exactly one.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Method names the fetch backend that produced a result.
type Method string

// Fetch methods.
const (
	MethodLightweight Method = "lightweight"
	MethodAutomation  Method = "automation"
	MethodNone        Method = "none"
)

// Stage tags where in the pipeline a skip or failure originated.
type Stage string

// Pipeline stages referenced by ErrorInfo.
const (
	StageClassification Stage = "classification"
	StageFetch          Stage = "fetch"
	StageExtraction     Stage = "extraction"
	StageBatchTimeout   Stage = "batch_timeout"
)

// ErrorInfo carries the machine-readable reason for a skip or failure.
type ErrorInfo struct {
	Reason string `json:"reason"`
	Stage  Stage  `json:"stage"`
}

// ExtractionStatus reports whether the content extractor parsed the bytes.
type ExtractionStatus string

// Extraction outcomes. Empty means extraction was never attempted.
const (
	ExtractionOK     ExtractionStatus = "ok"
	ExtractionFailed ExtractionStatus = "failed"
)

// CacheLayer identifies which dedup layer satisfied a fetch, if any.
type CacheLayer string

// Cache layers.
const (
	CacheLayerURL     CacheLayer = "url"
	CacheLayerContent CacheLayer = "content"
)

// FetchResult is the terminal record for one classified link. Exactly one
// exists per CandidateLink in a batch; the aggregator enforces this.
type FetchResult struct {
	URL              string           `json:"url"`
	Status           Status           `json:"status"`
	Category         Category         `json:"category"`
	Tier             Tier             `json:"tier"`
	MethodUsed       Method           `json:"method_used"`
	BytesLen         int              `json:"bytes_len"`
	ContentType      string           `json:"content_type,omitempty"`
	Duration         time.Duration    `json:"duration_ns"`
	RetryCount       int              `json:"retry_count"`
	Position         int              `json:"position"`
	ChildIndex       int              `json:"child_index,omitempty"`
	PortalURL        string           `json:"portal_url,omitempty"`
	ContentHash      string           `json:"content_hash,omitempty"`
	ExtractedText    string           `json:"extracted_text,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status,omitempty"`
	CacheHit         CacheLayer       `json:"cache_hit,omitempty"`
	Error            *ErrorInfo       `json:"error_info,omitempty"`
}

// DownloadedDocument is the content-addressed record shared by every URL
// whose downloaded bytes hash to the same digest.
type DownloadedDocument struct {
	ContentHash      string           `json:"content_hash"`
	BlobURI          string           `json:"blob_uri,omitempty"`
	ContentType      string           `json:"content_type,omitempty"`
	ExtractedText    string           `json:"extracted_text,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	FirstSeenAt      time.Time        `json:"first_seen_at"`
}

// DocumentMeta is opaque source metadata passed through for diagnostics.
type DocumentMeta struct {
	Subject    string    `json:"subject,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Document is one ingested markup payload submitted for processing.
type Document struct {
	Markup  string       `json:"markup"`
	BaseURL string       `json:"base_url,omitempty"`
	Meta    DocumentMeta `json:"meta,omitempty"`
}

// ProcessingSummary is returned to the caller for every batch. It is always
// complete: one result per candidate link regardless of partial failures.
type ProcessingSummary struct {
	BatchID         string           `json:"batch_id"`
	Extracted       int              `json:"extracted"`
	Discovered      int              `json:"discovered_via_portal"`
	DroppedRelative int              `json:"dropped_relative"`
	Succeeded       int              `json:"succeeded"`
	Skipped         int              `json:"skipped"`
	Failed          int              `json:"failed"`
	ByCategory      map[Category]int `json:"by_category"`
	ByTier          map[Tier]int     `json:"by_tier"`
	ByStatus        map[Status]int   `json:"by_status"`
	Results         []FetchResult    `json:"results"`
	Duration        time.Duration    `json:"duration_ns"`
	Meta            DocumentMeta     `json:"meta,omitempty"`
}

// FetchRequest captures everything a fetcher needs for one attempt.
type FetchRequest struct {
	BatchID string
	URL     string
	Tier    Tier
	Headers http.Header
}

// FetchResponse is returned by a Fetcher implementation.
type FetchResponse struct {
	URL            string
	StatusCode     int
	Headers        http.Header
	Body           []byte
	ContentType    string
	Duration       time.Duration
	UsedAutomation bool
}
