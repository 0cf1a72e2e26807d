package policy

import (
	"context"
	"time"

	"swarmcore/internal/logging"
	"swarmcore/internal/swarmerr"
)

// MandateThresholds configures the consensus state machine.
type MandateThresholds struct {
	EstablishedNet float64 // candidate -> established when net >= this
	MandateNet     float64 // established -> mandate when net >= this ...
	MandateRatio   float64 // ... AND ratio >= this
	RejectedNet    float64 // any non-rejected -> rejected when net <= this
}

// DefaultMandateThresholds returns the default threshold values.
func DefaultMandateThresholds() MandateThresholds {
	return MandateThresholds{EstablishedNet: 2, MandateNet: 5, MandateRatio: 0.7, RejectedNet: -3}
}

// MandateEngine runs time-decayed consensus voting over submitted mandates.
type MandateEngine struct {
	store      Store
	halfLife   time.Duration
	thresholds MandateThresholds
}

// NewMandateEngine constructs a MandateEngine backed by store.
func NewMandateEngine(store Store, halfLife time.Duration, thresholds MandateThresholds) *MandateEngine {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &MandateEngine{store: store, halfLife: halfLife, thresholds: thresholds}
}

// Submit registers a new candidate mandate.
func (e *MandateEngine) Submit(ctx context.Context, m *Mandate) error {
	if m.Status == "" {
		m.Status = MandateCandidate
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return e.store.StoreMandate(ctx, m)
}

// Vote casts a ballot on mandateID by agent, re-evaluates consensus, and
// persists the mandate's resulting status. Duplicate (mandate, agent) votes
// are rejected.
func (e *MandateEngine) Vote(ctx context.Context, mandateID, agent string, voteType VoteType, weight float64) (MandateStatus, error) {
	mandate, err := e.store.GetMandate(ctx, mandateID)
	if err != nil {
		return "", err
	}
	if mandate == nil {
		return "", swarmerr.New(swarmerr.NotFound, "policy.Vote", mandateID, "mandate not found")
	}

	existing, err := e.store.GetVotes(ctx, mandateID)
	if err != nil {
		return "", err
	}
	for _, v := range existing {
		if v.Agent == agent {
			return "", swarmerr.New(swarmerr.Conflict, "policy.Vote", mandateID,
				"agent has already voted on this mandate").WithRemedy("retract the existing vote before revoting")
		}
	}

	if weight <= 0 {
		weight = 1
	}
	vote := &Vote{MandateID: mandateID, Agent: agent, VoteType: voteType, Timestamp: time.Now(), Weight: weight}
	if err := e.store.StoreVote(ctx, vote); err != nil {
		return "", err
	}

	newStatus := e.evaluate(ctx, mandate)
	if newStatus != mandate.Status {
		logging.Policy("mandate %s transitioned %s -> %s", mandateID, mandate.Status, newStatus)
	}
	mandate.Status = newStatus
	if err := e.store.StoreMandate(ctx, mandate); err != nil {
		return "", err
	}
	return newStatus, nil
}

// evaluate recomputes decayed net/ratio from all votes and applies the
// transition table, respecting the stickiness of mandate/rejected.
func (e *MandateEngine) evaluate(ctx context.Context, m *Mandate) MandateStatus {
	if m.Status == MandateMandate || m.Status == MandateRejected {
		return m.Status
	}

	votes, err := e.store.GetVotes(ctx, m.ID)
	if err != nil {
		return m.Status
	}

	now := time.Now()
	var up, down float64
	for _, v := range votes {
		w := decayedWeight(v.Weight, now.Sub(v.Timestamp), e.halfLife)
		switch v.VoteType {
		case Upvote:
			up += w
		case Downvote:
			down += w
		}
	}
	net := up - down
	var ratio float64
	if up+down > 0 {
		ratio = up / (up + down)
	}

	// Votes cast moments ago have decayed by a negligible amount; compare
	// with a small tolerance so fresh unit votes meet integer thresholds.
	const eps = 1e-9
	switch {
	case net <= e.thresholds.RejectedNet+eps:
		return MandateRejected
	case net >= e.thresholds.MandateNet-eps && ratio >= e.thresholds.MandateRatio:
		return MandateMandate
	case net >= e.thresholds.EstablishedNet-eps:
		return MandateEstablished
	default:
		return MandateCandidate
	}
}
