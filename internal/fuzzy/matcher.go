// Package fuzzy implements the candidate-duplicate matcher:
// block rows by a user-chosen strategy, score within-block pairs by
// normalized edit distance, and classify against dual thresholds. Scoring
// uses the ecosystem's Levenshtein implementation rather than a hand-rolled
// distance function.
package fuzzy

import (
	"context"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/cleanslate/core/internal/domain"
)

// OversizedBlockThreshold is the row count above which a block is flagged
// oversized and only partially scored.
const OversizedBlockThreshold = 500

// OversizedBlockCap bounds how many rows of an oversized block are actually
// paired and scored.
const OversizedBlockCap = 200

// Row is the minimal shape the matcher needs: identity and the match
// column's value, already in _cs_id order.
type Row struct {
	CSID  int64
	Value string
}

// Options parameterizes one matching run.
type Options struct {
	Strategy          Strategy
	MatchColumn       string
	DefiniteThreshold int
	MaybeThreshold    int
}

// Progress reports cooperative-scheduling status between blocks, surfaced
// verbatim to the caller's UI.
type Progress struct {
	Phase           string // analyzing|processing|complete
	CurrentBlock    int
	TotalBlocks     int
	PairsFound      int
	MaybeCount      int
	DefiniteCount   int
	CurrentBlockKey string
	OversizedBlocks int
}

// Run blocks rows per opts.Strategy, scores within-block pairs, and returns
// every pair classified maybe or better, canonicalized so RowACSID <
// RowBCSID. onProgress may be nil.
func Run(ctx context.Context, rows []Row, opts Options, onProgress func(Progress)) ([]domain.MatchPair, error) {
	if opts.Strategy == BlockFullScan && len(rows) > FullScanRowThreshold {
		return nil, domain.NewErrValidation("fuzzy:match", "full_scan blocking is disallowed above the row threshold")
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	order := []string{}
	blocks := map[string][]Row{}
	for _, r := range rows {
		key := blockKey(opts.Strategy, r.Value)
		if _, seen := blocks[key]; !seen {
			order = append(order, key)
		}
		blocks[key] = append(blocks[key], r)
	}
	sort.Strings(order) // deterministic iteration order across runs

	onProgress(Progress{Phase: "analyzing", TotalBlocks: len(order)})

	var pairs []domain.MatchPair
	maybeCount, definiteCount, oversized := 0, 0, 0

	for i, key := range order {
		select {
		case <-ctx.Done():
			return pairs, ctx.Err()
		default:
		}

		block := blocks[key]
		scored := block
		if len(block) > OversizedBlockThreshold {
			oversized++
			if len(block) > OversizedBlockCap {
				scored = block[:OversizedBlockCap]
			}
		}

		for a := 0; a < len(scored); a++ {
			for b := a + 1; b < len(scored); b++ {
				sim := similarity(scored[a].Value, scored[b].Value)
				class := domain.Classify(sim, opts.DefiniteThreshold, opts.MaybeThreshold)
				if class == domain.ClassNotMatch {
					continue
				}
				rowA, rowB := scored[a], scored[b]
				if rowB.CSID < rowA.CSID {
					rowA, rowB = rowB, rowA
				}
				pairs = append(pairs, domain.MatchPair{
					RowACSID:    rowA.CSID,
					RowBCSID:    rowB.CSID,
					Similarity:  sim,
					Status:      domain.MatchPending,
					KeepRow:     domain.KeepA,
					MatchColumn: opts.MatchColumn,
					BlockKey:    key,
				})
				if class == domain.ClassDefinite {
					definiteCount++
				} else {
					maybeCount++
				}
			}
		}

		onProgress(Progress{
			Phase:           "processing",
			CurrentBlock:    i + 1,
			TotalBlocks:     len(order),
			PairsFound:      len(pairs),
			MaybeCount:      maybeCount,
			DefiniteCount:   definiteCount,
			CurrentBlockKey: key,
			OversizedBlocks: oversized,
		})
	}

	onProgress(Progress{
		Phase:           "complete",
		TotalBlocks:     len(order),
		CurrentBlock:    len(order),
		PairsFound:      len(pairs),
		MaybeCount:      maybeCount,
		DefiniteCount:   definiteCount,
		OversizedBlocks: oversized,
	})
	return pairs, nil
}

// similarity computes a symmetric, deterministic [0,100] score from
// normalized Levenshtein edit distance.
func similarity(a, b string) int {
	na, nb := normalize(a), normalize(b)
	if na == "" && nb == "" {
		return 100
	}
	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 100
	}
	score := 100 - (dist*100)/maxLen
	if score < 0 {
		score = 0
	}
	return score
}
