package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "obrien", normalize("O'Brien"))
	assert.Equal(t, "johnsmith", normalize("John Smith"))
	assert.Equal(t, "", normalize("---"))
}

func TestBlockKey_FirstLetter(t *testing.T) {
	assert.Equal(t, "j", blockKey(BlockFirstLetter, "John"))
	assert.Equal(t, "j", blockKey(BlockFirstLetter, "jane"))
	assert.Equal(t, "", blockKey(BlockFirstLetter, ""))
}

func TestBlockKey_FullScanCollapsesToOneBlock(t *testing.T) {
	assert.Equal(t, "", blockKey(BlockFullScan, "anything"))
	assert.Equal(t, "", blockKey(BlockFullScan, "something else"))
}

func TestSoundex_ClassicExamples(t *testing.T) {
	// Robert and Rupert are the textbook soundex equivalence example.
	assert.Equal(t, soundex("robert"), soundex("rupert"))
	assert.Equal(t, "R163", soundex("robert"))
}

func TestSoundex_Empty(t *testing.T) {
	assert.Equal(t, "0000", soundex(""))
}

func TestMetaphoneKey_CollapsesDigraphs(t *testing.T) {
	assert.Equal(t, metaphoneKey("phone"), metaphoneKey("fone"))
}

func TestMetaphoneKey_CapsAtSixChars(t *testing.T) {
	key := metaphoneKey("abcdefghijklmnop")
	assert.LessOrEqual(t, len(key), 6)
}
