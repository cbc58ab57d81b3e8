// Package history implements the read-side analytics over version chains:
// chain-weighted differences, pairwise property diffs, and similarity
// ranking.
package history

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
	appErrors "chronograph-backend/pkg/errors"
)

// Analyzer answers analytic queries against the graph. It only reads; it
// observes either the pre- or post-branch state of any lineage, never a torn
// intermediate.
type Analyzer struct {
	repo   repository.Repository
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer over the given store.
func NewAnalyzer(repo repository.Repository, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{repo: repo, logger: logger}
}

// ChainResult is the outcome for one enumerated chain. A malformed chain
// (missing or non-numeric field on a member) carries Err and no score; other
// chains in the same request are unaffected.
type ChainResult struct {
	// Path is the entity ids along the chain, start first.
	Path []string
	// Values are the extracted numeric values at each hop.
	Values []float64
	// Score is the mean absolute step-to-step difference. A single-member
	// chain scores its raw value (divisor 1).
	Score float64
	// Err is set when the chain could not be scored.
	Err error
}

// ChainWeightedDifference enumerates every maximal chain reachable from
// startID via edges of the given type and scores each one:
//
//	sum(|v[i] - v[i+1]|) / max(1, len-1)
//
// Cycles are cut at the repeated entity. Works for version chains and any
// other chain-shaped relation.
func (a *Analyzer) ChainWeightedDifference(ctx context.Context, startID string, edgeType domain.EdgeType, field string) ([]ChainResult, error) {
	if _, err := a.repo.FindEntityByID(ctx, startID); err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("entity not found: " + startID)
		}
		return nil, appErrors.Wrap(err, "failed to load chain start")
	}

	var paths [][]string
	a.walkChains(ctx, startID, edgeType, []string{startID}, map[string]bool{startID: true}, &paths)

	results := make([]ChainResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, a.scoreChain(ctx, path, field))
	}
	return results, nil
}

// walkChains depth-first enumerates maximal paths from id. The visited set is
// per-path so diamond shapes still yield every distinct chain.
func (a *Analyzer) walkChains(ctx context.Context, id string, edgeType domain.EdgeType, path []string, visited map[string]bool, out *[][]string) {
	edges, err := a.repo.FindEdges(ctx, repository.EdgeQuery{
		SourceID: id,
		Types:    []domain.EdgeType{edgeType},
	})
	if err != nil || len(edges) == 0 {
		*out = append(*out, append([]string(nil), path...))
		return
	}

	extended := false
	for _, edge := range edges {
		if visited[edge.TargetID] {
			continue
		}
		extended = true
		visited[edge.TargetID] = true
		a.walkChains(ctx, edge.TargetID, edgeType, append(path, edge.TargetID), visited, out)
		delete(visited, edge.TargetID)
	}
	if !extended {
		*out = append(*out, append([]string(nil), path...))
	}
}

func (a *Analyzer) scoreChain(ctx context.Context, path []string, field string) ChainResult {
	result := ChainResult{Path: path}

	values := make([]float64, 0, len(path))
	for _, id := range path {
		entity, err := a.repo.FindEntityByID(ctx, id)
		if err != nil {
			result.Err = fmt.Errorf("%w: member %s unreadable: %v", domain.ErrMalformedChain, id, err)
			return result
		}
		value, ok := entity.Properties[field]
		if !ok {
			result.Err = fmt.Errorf("%w: member %s missing field %q", domain.ErrMalformedChain, id, field)
			return result
		}
		num, ok := value.Number()
		if !ok {
			result.Err = fmt.Errorf("%w: member %s field %q is not numeric", domain.ErrMalformedChain, id, field)
			return result
		}
		values = append(values, num)
	}
	result.Values = values

	if len(values) == 1 {
		result.Score = values[0]
		return result
	}
	var sum float64
	for i := 0; i+1 < len(values); i++ {
		sum += math.Abs(values[i] - values[i+1])
	}
	result.Score = sum / float64(len(values)-1)
	return result
}

// DiffOptions controls pairwise property diff behavior.
type DiffOptions struct {
	// IncludeMissing treats a key present on only one side as differing.
	// Off by default: one-sided keys are excluded from the result.
	IncludeMissing bool
}

// PropertyDiff returns the sorted set of property keys whose values differ
// between the two entities.
func (a *Analyzer) PropertyDiff(ctx context.Context, aID, bID string, opts DiffOptions) ([]string, error) {
	left, err := a.repo.FindEntityByID(ctx, aID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("entity not found: " + aID)
		}
		return nil, appErrors.Wrap(err, "failed to load diff operand")
	}
	right, err := a.repo.FindEntityByID(ctx, bID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("entity not found: " + bID)
		}
		return nil, appErrors.Wrap(err, "failed to load diff operand")
	}

	differing := make(map[string]bool)
	for key, lv := range left.Properties {
		rv, ok := right.Properties[key]
		if !ok {
			if opts.IncludeMissing {
				differing[key] = true
			}
			continue
		}
		if !lv.Equal(rv) {
			differing[key] = true
		}
	}
	if opts.IncludeMissing {
		for key := range right.Properties {
			if _, ok := left.Properties[key]; !ok {
				differing[key] = true
			}
		}
	}

	keys := make([]string, 0, len(differing))
	for key := range differing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// SimilarEntity pairs a current entity with the number of property values it
// shares with the reference entity.
type SimilarEntity struct {
	Entity *domain.Entity
	Shared int
}

// SimilarEntities ranks other Current entities by the count of property keys
// whose values equal the reference entity's, descending, ties broken by
// entity id for determinism. Entities sharing nothing are omitted.
func (a *Analyzer) SimilarEntities(ctx context.Context, id string, limit int) ([]SimilarEntity, error) {
	ref, err := a.repo.FindEntityByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.NewNotFound("entity not found: " + id)
		}
		return nil, appErrors.Wrap(err, "failed to load reference entity")
	}
	if limit <= 0 {
		limit = 10
	}

	candidates, err := a.repo.FindEntities(ctx, repository.EntityQuery{State: domain.StateCurrent})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to list candidates")
	}

	var ranked []SimilarEntity
	for _, candidate := range candidates {
		if candidate.ID == ref.ID || candidate.LineageID == ref.LineageID {
			continue
		}
		shared := 0
		for key, value := range ref.Properties {
			if other, ok := candidate.Properties[key]; ok && value.Equal(other) {
				shared++
			}
		}
		if shared > 0 {
			ranked = append(ranked, SimilarEntity{Entity: candidate, Shared: shared})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Shared != ranked[j].Shared {
			return ranked[i].Shared > ranked[j].Shared
		}
		return ranked[i].Entity.ID < ranked[j].Entity.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
