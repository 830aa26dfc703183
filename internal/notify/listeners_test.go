package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListeners(t *testing.T) {
	var l Listeners[uint64]
	var got [][]uint64

	remove := l.Add(func(keys []uint64) { got = append(got, keys) })
	assert.Equal(t, 1, l.Len())

	l.Notify([]uint64{1, 2})
	remove()
	remove()
	l.Notify([]uint64{3})

	assert.Equal(t, [][]uint64{{1, 2}}, got)
	assert.Equal(t, 0, l.Len())
}
