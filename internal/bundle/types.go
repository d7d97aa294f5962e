// Package bundle classifies incoming messages by link count and orchestrates
// extraction and affiliate conversion into product records.
package bundle

import (
	"time"

	"sjsage522/deallinker/internal/extract"
	"sjsage522/deallinker/internal/platform"
)

// Kind is the handling mode chosen for a message
type Kind string

const (
	KindNone   Kind = "none"
	KindSingle Kind = "single"
	KindSmall  Kind = "small"
	KindLarge  Kind = "large"
)

// MaxFullExtractions is the largest bundle in which every link is fetched
const MaxFullExtractions = 3

// Classify maps a distinct link count to a handling mode
func Classify(links int) Kind {
	switch {
	case links <= 0:
		return KindNone
	case links == 1:
		return KindSingle
	case links <= MaxFullExtractions:
		return KindSmall
	default:
		return KindLarge
	}
}

// Message is one inbound chat message
type Message struct {
	ID             string   `json:"id,omitempty"`
	Text           string   `json:"text"`
	AttachedImages []string `json:"attached_images,omitempty"`
	// Channel selects the affiliate channel; empty uses the configured default
	Channel string `json:"channel,omitempty"`
}

// StubProduct is the lightweight record of a secondary link in a large bundle
type StubProduct struct {
	URL          string         `json:"url"`
	OriginalURL  string         `json:"original_url"`
	Platform     platform.ID    `json:"platform"`
	Title        string         `json:"title"`
	Price        string         `json:"price"`
	Currency     string         `json:"currency"`
	ImageURL     string         `json:"image_url"`
	AffiliateURL string         `json:"affiliate_url"`
	Network      string         `json:"network"`
	Converted    bool           `json:"converted"`
	Source       extract.Source `json:"source"`
}

// ProductRecord is the assembled output handed to storage. Its shape does not
// depend on which extraction path produced it.
type ProductRecord struct {
	ID            string      `json:"id"`
	MessageID     string      `json:"message_id,omitempty"`
	URL           string      `json:"url"`
	OriginalURL   string      `json:"original_url"`
	RedirectChain []string    `json:"redirect_chain"`
	Platform      platform.ID `json:"platform"`

	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Price           string   `json:"price"`
	OriginalPrice   string   `json:"original_price,omitempty"`
	Currency        string   `json:"currency"`
	ImageURL        string   `json:"image_url"`
	Rating          *float64 `json:"rating,omitempty"`
	ReviewCount     *int     `json:"review_count,omitempty"`
	DiscountPercent *int     `json:"discount_percent,omitempty"`
	Category        string   `json:"category,omitempty"`
	HasLimitedOffer bool     `json:"has_limited_offer"`

	Source        extract.Source `json:"source"`
	LowConfidence bool           `json:"low_confidence"`

	AffiliateURL       string            `json:"affiliate_url"`
	Network            string            `json:"network"`
	TrackingParams     map[string]string `json:"tracking_params,omitempty"`
	CommissionEstimate string            `json:"commission_estimate,omitempty"`
	Converted          bool              `json:"converted"`
	FailureReason      string            `json:"failure_reason,omitempty"`

	GroupID            string        `json:"group_id,omitempty"`
	SequenceInGroup    int           `json:"sequence_in_group"`
	TotalInGroup       int           `json:"total_in_group"`
	BundleKind         Kind          `json:"bundle_kind"`
	AdditionalProducts []StubProduct `json:"additional_products,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Result is everything produced for one message
type Result struct {
	Kind    Kind
	GroupID string
	Records []ProductRecord
	// Attempted counts full extractions, Succeeded those that yielded a page record
	Attempted int
	Succeeded int
}
