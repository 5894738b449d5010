package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogBuffer_EvictsOldest(t *testing.T) {
	b := NewLogBuffer(0)
	assert.Equal(t, DefaultLogCapacity, b.Cap())

	for i := 1; i <= 60; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	lines := b.Lines()
	assert.Len(t, lines, 50)
	assert.Equal(t, "line 11", lines[0])
	assert.Equal(t, "line 60", lines[49])
	assert.Equal(t, "line 60", b.Latest())
}

func TestLogBuffer_EmptyAndClear(t *testing.T) {
	b := NewLogBuffer(3)
	assert.Equal(t, "", b.Latest())
	assert.Empty(t, b.Lines())

	b.Append("a")
	b.Append("b")
	assert.Equal(t, []string{"a", "b"}, b.Lines())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "", b.Latest())

	b.Append("c")
	assert.Equal(t, []string{"c"}, b.Lines())
}

func TestLogBuffer_ConcurrentAccess(t *testing.T) {
	b := NewLogBuffer(10)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Append("x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = b.Latest()
			_ = b.Lines()
		}
	}()
	wg.Wait()

	assert.Equal(t, 10, b.Len())
}
