package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedPointConversions(t *testing.T) {
	assert.Equal(t, 3, xtoi(itox(3)))
	assert.Equal(t, -3, xtoi(itox(-3)))
	assert.Equal(t, 4, xtoiRound(itox(3)+fixedF/2))
}

func TestFixedPointArithmetic(t *testing.T) {
	a := itox(6)
	b := itox(2)
	assert.Equal(t, itox(8), addxn(a, 2))
	assert.Equal(t, itox(4), subxn(a, 2))
	assert.Equal(t, itox(3), divxy(a, b))
	assert.Equal(t, itox(12), mulxy(a, b))
	assert.Equal(t, itox(12), mulxn(a, 2))
	assert.Equal(t, itox(3), divxn(a, 2))
}
