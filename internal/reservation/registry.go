package reservation

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmcore/internal/logging"
)

// Registry is the in-memory Reservation Registry. Grants are always
// returned; conflicts are reported as warnings, not enforced.
type Registry struct {
	mu sync.Mutex
	// byProject[project_key][path_pattern] -> live reservations on that pattern
	byProject map[string]map[string][]*Reservation
}

// NewRegistry constructs an empty reservation registry.
func NewRegistry() *Registry {
	return &Registry{byProject: make(map[string]map[string][]*Reservation)}
}

// Reserve requests reservations on paths, always granting them while
// reporting any conflicting live holders.
func (r *Registry) Reserve(ctx context.Context, projectKey, agent string, paths []string, ttl time.Duration, exclusive bool, reason string) (ReserveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepExpiredLocked(projectKey)

	if _, ok := r.byProject[projectKey]; !ok {
		r.byProject[projectKey] = make(map[string][]*Reservation)
	}

	now := time.Now()
	var result ReserveResult

	for _, path := range paths {
		conflicts := r.findConflictsLocked(projectKey, path, agent, exclusive)
		if len(conflicts) > 0 {
			result.Conflicts = append(result.Conflicts, Conflict{Path: path, Holders: conflicts})
			logging.ReservationWarn("conflict on %s in project %s: %d holder(s)", path, projectKey, len(conflicts))
		}

		res := &Reservation{
			ID: uuid.NewString(), ProjectKey: projectKey, Agent: agent,
			PathPattern: path, Exclusive: exclusive, Reason: reason,
			GrantedAt: now, ExpiresAt: now.Add(ttl),
		}
		r.byProject[projectKey][path] = append(r.byProject[projectKey][path], res)

		result.Granted = append(result.Granted, Grant{
			ID: res.ID, PathPattern: path, Exclusive: exclusive, Reason: reason, ExpiresAt: res.ExpiresAt,
		})
	}

	logging.ReservationDebug("reserved %d path(s) for agent=%s project=%s exclusive=%v", len(paths), agent, projectKey, exclusive)
	return result, nil
}

// findConflictsLocked reports live reservations on patterns that overlap
// path, held by a different agent, where at least one side is exclusive.
// Overlap is decided by overlaps: identical patterns overlap, and a
// non-trivial glob pattern (containing a meta character) is treated as
// overlapping every other pattern.
func (r *Registry) findConflictsLocked(projectKey, path, agent string, exclusive bool) []Holder {
	patterns := r.byProject[projectKey]
	now := time.Now()

	var holders []Holder
	for pattern, reservations := range patterns {
		if !overlaps(path, pattern) {
			continue
		}
		for _, res := range reservations {
			if res.expired(now) || res.Agent == agent {
				continue
			}
			if exclusive || res.Exclusive {
				holders = append(holders, Holder{Agent: res.Agent, PathPattern: res.PathPattern})
			}
		}
	}
	return holders
}

// overlaps reports whether two path patterns could refer to overlapping
// file sets. Exact matches always overlap. Otherwise, if either pattern
// contains a glob meta character, it is conservatively treated as
// overlapping.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	if isGlob(a) || isGlob(b) {
		if ok, err := filepath.Match(a, b); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(b, a); err == nil && ok {
			return true
		}
		return true // conservative overapproximation
	}
	return false
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Release releases reservations held by (project, agent). If paths is
// empty, all of the agent's reservations in the project are released.
// Idempotent.
func (r *Registry) Release(ctx context.Context, projectKey, agent string, paths []string) (ReleaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	released := 0

	patterns := r.byProject[projectKey]
	if patterns == nil {
		return ReleaseResult{Released: 0, ReleasedAt: now}, nil
	}

	releaseAll := len(paths) == 0
	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	for pattern, reservations := range patterns {
		if !releaseAll && !pathSet[pattern] {
			continue
		}
		var kept []*Reservation
		for _, res := range reservations {
			if res.Agent == agent {
				released++
				continue
			}
			kept = append(kept, res)
		}
		if len(kept) == 0 {
			delete(patterns, pattern)
		} else {
			patterns[pattern] = kept
		}
	}

	logging.ReservationDebug("released %d reservation(s) for agent=%s project=%s", released, agent, projectKey)
	return ReleaseResult{Released: released, ReleasedAt: now}, nil
}

// sweepExpiredLocked lazily removes expired reservations for a project.
func (r *Registry) sweepExpiredLocked(projectKey string) {
	patterns := r.byProject[projectKey]
	if patterns == nil {
		return
	}
	now := time.Now()
	for pattern, reservations := range patterns {
		var live []*Reservation
		for _, res := range reservations {
			if !res.expired(now) {
				live = append(live, res)
			}
		}
		if len(live) == 0 {
			delete(patterns, pattern)
		} else {
			patterns[pattern] = live
		}
	}
}

// Sweep actively expires reservations across all projects and returns how
// many were removed. Reserve only removes expired reservations of the
// project it is called for; Sweep is the caller-invoked sweep over all of
// them.
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	now := time.Now()
	for _, patterns := range r.byProject {
		for pattern, reservations := range patterns {
			var live []*Reservation
			for _, res := range reservations {
				if res.expired(now) {
					swept++
				} else {
					live = append(live, res)
				}
			}
			if len(live) == 0 {
				delete(patterns, pattern)
			} else {
				patterns[pattern] = live
			}
		}
	}
	if swept > 0 {
		logging.ReservationDebug("swept %d expired reservation(s)", swept)
	}
	return swept
}
