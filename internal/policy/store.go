package policy

import "context"

// Store is the persistence boundary for mandates, votes, patterns, and
// their maturity records.
type Store interface {
	StoreMandate(ctx context.Context, m *Mandate) error
	GetMandate(ctx context.Context, id string) (*Mandate, error)
	GetAllMandates(ctx context.Context) ([]*Mandate, error)
	GetMandatesByTag(ctx context.Context, tag string) ([]*Mandate, error)
	FindMandatesByContent(ctx context.Context, query string) ([]*Mandate, error)

	StoreVote(ctx context.Context, v *Vote) error
	GetVotes(ctx context.Context, mandateID string) ([]*Vote, error)

	StorePattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, id string) (*Pattern, error)
	GetAllPatterns(ctx context.Context) ([]*Pattern, error)
	GetPatternsByKind(ctx context.Context, kind PatternKind) ([]*Pattern, error)
	GetPatternsByTag(ctx context.Context, tag string) ([]*Pattern, error)
	FindPatternsByContent(ctx context.Context, query string) ([]*Pattern, error)

	StoreMaturity(ctx context.Context, m *PatternMaturity) error
	GetMaturity(ctx context.Context, patternID string) (*PatternMaturity, error)
}
