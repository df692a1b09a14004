package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		similarity int
		want       Classification
	}{
		{100, ClassDefinite},
		{95, ClassDefinite},
		{80, ClassMaybe},
		{70, ClassMaybe},
		{50, ClassNotMatch},
		{0, ClassNotMatch},
	}
	for _, c := range cases {
		got := Classify(c.similarity, 90, 70)
		assert.Equalf(t, c.want, got, "similarity=%d", c.similarity)
	}
}

func TestClassify_BoundariesAreInclusive(t *testing.T) {
	assert.Equal(t, ClassDefinite, Classify(90, 90, 70))
	assert.Equal(t, ClassMaybe, Classify(70, 90, 70))
	assert.Equal(t, ClassNotMatch, Classify(69, 90, 70))
}
