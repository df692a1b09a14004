package fuzzy

import "strings"

// Strategy selects how candidate rows are partitioned before scoring.
// Only within-block pairs are ever scored, bounding cost on large
// tables.
type Strategy string

const (
	BlockFirstLetter     Strategy = "first_letter"
	BlockDoubleMetaphone Strategy = "double_metaphone"
	BlockSoundex         Strategy = "soundex"
	BlockNgram           Strategy = "ngram"
	BlockFullScan        Strategy = "full_scan"
)

// FullScanRowThreshold is the row count above which full_scan blocking is
// refused, since it collapses the whole table into one block.
const FullScanRowThreshold = 5000

// normalize lowercases and strips punctuation/whitespace ahead of blocking
// or scoring, so "O'Brien" and "obrien" land in the same block.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// blockKey derives the block key for v under strategy.
func blockKey(strategy Strategy, v string) string {
	n := normalize(v)
	switch strategy {
	case BlockFirstLetter:
		if n == "" {
			return ""
		}
		return n[:1]
	case BlockSoundex:
		return soundex(n)
	case BlockDoubleMetaphone:
		return metaphoneKey(n)
	case BlockNgram:
		if len(n) <= 2 {
			return n
		}
		return n[:2]
	case BlockFullScan:
		return ""
	default:
		return n
	}
}

// soundex implements the classic American Soundex code: a letter followed
// by three digits derived from consonant groupings, grounded on the
// standard Odell-Russell algorithm.
func soundex(s string) string {
	if s == "" {
		return "0000"
	}
	code := map[byte]byte{
		'b': '1', 'f': '1', 'p': '1', 'v': '1',
		'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
		'd': '3', 't': '3',
		'l': '4',
		'm': '5', 'n': '5',
		'r': '6',
	}
	first := s[0]
	out := []byte{upper(first)}
	last := code[first]
	for i := 1; i < len(s) && len(out) < 4; i++ {
		c := code[s[i]]
		if c != 0 && c != last {
			out = append(out, c)
		}
		if s[i] != 'h' && s[i] != 'w' {
			last = c
		}
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

// metaphoneKey computes a simplified single-code metaphone key: common
// digraphs collapse to one consonant sound and vowels are dropped after the
// first letter. It approximates double metaphone's primary code, which is
// sufficient for blocking purposes (scoring still runs exact string
// distance within the block).
func metaphoneKey(s string) string {
	if s == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"ph", "f",
		"th", "t",
		"sh", "s",
		"ck", "k",
		"wr", "r",
		"kn", "n",
		"gn", "n",
	)
	s = replacer.Replace(s)
	var b strings.Builder
	for i, r := range s {
		isVowel := r == 'a' || r == 'e' || r == 'i' || r == 'o' || r == 'u'
		if i > 0 && isVowel {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > 6 {
		out = out[:6]
	}
	return out
}
