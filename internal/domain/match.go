package domain

// MatchStatus is the user-decided disposition of a match pair.
type MatchStatus string

const (
	MatchPending      MatchStatus = "pending"
	MatchMerged       MatchStatus = "merged"
	MatchKeptSeparate MatchStatus = "kept_separate"
)

// KeepRow selects which side of a match pair survives a merge.
type KeepRow string

const (
	KeepA KeepRow = "A"
	KeepB KeepRow = "B"
)

// MatchPair is a candidate duplicate pair produced by the fuzzy matcher.
// Pairs are symmetric; only the (a,b) orientation with a.CSID < b.CSID is
// ever stored.
type MatchPair struct {
	ID          string      `json:"id"`
	RowACSID    int64       `json:"row_a_cs_id"`
	RowBCSID    int64       `json:"row_b_cs_id"`
	Similarity  int         `json:"similarity"` // 0..100
	Status      MatchStatus `json:"status"`
	KeepRow     KeepRow     `json:"keep_row"`
	MatchColumn string      `json:"match_column"`
	BlockKey    string      `json:"block_key"`
}

// Classification buckets a similarity score against the dual thresholds.
type Classification string

const (
	ClassDefinite  Classification = "definite"
	ClassMaybe     Classification = "maybe"
	ClassNotMatch  Classification = "not_match"
)

func Classify(similarity, definiteThreshold, maybeThreshold int) Classification {
	switch {
	case similarity >= definiteThreshold:
		return ClassDefinite
	case similarity >= maybeThreshold:
		return ClassMaybe
	default:
		return ClassNotMatch
	}
}
