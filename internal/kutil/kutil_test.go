package kutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinMax(t *testing.T) {
	assert.Equal(t, 3, Min(3, 5))
	assert.Equal(t, 5, Max(3, 5))
	assert.Equal(t, uintptr(2), Min(uintptr(2), uintptr(9)))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 4096, Rounddown(4100, 4096))
	assert.Equal(t, 8192, Roundup(4100, 4096))
	assert.Equal(t, 4096, Roundup(4096, 4096))
}

func TestDivRoundUp(t *testing.T) {
	assert.Equal(t, 2, DivRoundUp(9, 8))
	assert.Equal(t, 1, DivRoundUp(8, 8))
}
