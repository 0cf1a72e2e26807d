// Package policy implements two cooperating consensus/maturity engines:
// time-decayed mandate voting and decomposition pattern maturity with
// automatic anti-pattern inversion.
package policy

import "time"

// MandateStatus is the lifecycle state of a submitted mandate.
type MandateStatus string

const (
	MandateCandidate   MandateStatus = "candidate"
	MandateEstablished MandateStatus = "established"
	MandateMandate     MandateStatus = "mandate"
	MandateRejected    MandateStatus = "rejected"
)

// ContentType classifies the kind of content a mandate carries.
type ContentType string

const (
	ContentIdea           ContentType = "idea"
	ContentTip            ContentType = "tip"
	ContentLore           ContentType = "lore"
	ContentSnippet        ContentType = "snippet"
	ContentFeatureRequest ContentType = "feature_request"
)

// Mandate is a candidate idea/tip/lore/snippet/feature-request submitted
// for consensus voting.
type Mandate struct {
	ID          string
	Content     string
	ContentType ContentType
	Author      string
	CreatedAt   time.Time
	Status      MandateStatus
	Tags        []string
	Metadata    map[string]string
}

// VoteType is an up or down vote on a mandate.
type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// Vote is a single (mandate, agent) ballot. At most one per pair.
type Vote struct {
	ID        string
	MandateID string
	Agent     string
	VoteType  VoteType
	Timestamp time.Time
	Weight    float64
}

// PatternKind distinguishes a positive pattern from its anti-pattern inversion.
type PatternKind string

const (
	KindPattern     PatternKind = "pattern"
	KindAntiPattern PatternKind = "anti_pattern"
)

// maxExampleCells bounds the FIFO of example cell ids retained per pattern.
const maxExampleCells = 10

// Pattern is an observed decomposition heuristic accumulating
// success/failure observations.
type Pattern struct {
	ID           string
	Content      string
	Kind         PatternKind
	IsNegative   bool
	SuccessCount int
	FailureCount int
	Tags         []string
	ExampleCells []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Reason       string
}

// MaturityState is the lifecycle state of a pattern's accumulated feedback.
type MaturityState string

const (
	StateCandidate   MaturityState = "candidate"
	StateEstablished MaturityState = "established"
	StateProven      MaturityState = "proven"
	StateDeprecated  MaturityState = "deprecated"
)

// PatternMaturity tracks the decayed helpful/harmful observation counts for
// a pattern and its derived lifecycle state.
type PatternMaturity struct {
	PatternID     string
	State         MaturityState
	HelpfulCount  int
	HarmfulCount  int
	LastValidated time.Time
	PromotedAt    *time.Time
	DeprecatedAt  *time.Time
}

// InversionResult is emitted when a pattern crosses the automatic
// anti-pattern inversion threshold. Original is unmodified (non-destructive);
// Inverted is the newly-derived anti_pattern-kind copy.
type InversionResult struct {
	Original *Pattern
	Inverted *Pattern
}
