package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkedListPushAndOrder(t *testing.T) {
	var l LinkedList[int]
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)
	require.Equal(t, 3, l.Len())

	var got []int
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLinkedListRemoveMiddle(t *testing.T) {
	var l LinkedList[string]
	l.PushBack("a")
	mid := l.PushBack("b")
	l.PushBack("c")

	l.Remove(mid)
	assert.Equal(t, 2, l.Len())

	var got []string
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value)
	}
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestLinkedListRemoveHeadAndTail(t *testing.T) {
	var l LinkedList[int]
	head := l.PushBack(1)
	l.PushBack(2)
	tail := l.PushBack(3)

	l.Remove(head)
	l.Remove(tail)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, 2, l.Front().Value)
	assert.Equal(t, l.Front(), l.Back())
}

func TestLinkedListPushFront(t *testing.T) {
	var l LinkedList[int]
	l.PushBack(2)
	l.PushFront(1)
	assert.Equal(t, 1, l.Front().Value)
	assert.Equal(t, 2, l.Back().Value)
}
