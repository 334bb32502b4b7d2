package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		push     []int
		want     []int
	}{
		{name: "empty", capacity: 3, push: nil, want: []int{}},
		{name: "under capacity", capacity: 3, push: []int{1, 2}, want: []int{1, 2}},
		{name: "exactly full", capacity: 3, push: []int{1, 2, 3}, want: []int{1, 2, 3}},
		{name: "evicts oldest", capacity: 2, push: []int{1, 2, 3, 4, 5}, want: []int{4, 5}},
		{name: "wraps many times", capacity: 3, push: []int{1, 2, 3, 4, 5, 6, 7}, want: []int{5, 6, 7}},
		{name: "unbounded", capacity: 0, push: []int{1, 2, 3}, want: []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[int](tt.capacity)
			for _, v := range tt.push {
				r.Push(v)
			}
			assert.Equal(t, tt.want, r.Items())
			assert.Equal(t, len(tt.want), r.Len())
		})
	}
}

func TestRing_ItemsIsCopy(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")

	items := r.Items()
	items[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, r.Items())
}

func TestRing_HugeCapacity(t *testing.T) {
	r := New[int](1 << 40)
	r.Push(1)
	r.Push(2)

	assert.Equal(t, []int{1, 2}, r.Items())
	assert.Equal(t, 2, r.Len())
	assert.LessOrEqual(t, cap(r.buf), 8, "storage grows with pushes, not capacity")
}
