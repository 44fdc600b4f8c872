package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpAlwaysMisses(t *testing.T) {
	n := NewNoOp[string, int]()
	evicted := n.Add("a", 1, 0)
	assert.False(t, evicted)

	_, ok := n.Get("a")
	assert.False(t, ok)
	assert.Nil(t, n.Keys())

	n.Purge() // must not panic
}
