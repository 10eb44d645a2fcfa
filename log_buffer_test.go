package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(3)
	assert.Empty(t, b.Lines())

	b.Append("one")
	b.Append("two")
	assert.Equal(t, []string{"one", "two"}, b.Lines())

	b.Append("three")
	b.Append("four")
	assert.Equal(t, []string{"two", "three", "four"}, b.Lines(), "oldest line evicted")

	b.Clear()
	assert.Empty(t, b.Lines())
}

func TestLogBufferCopyIsolation(t *testing.T) {
	b := NewLogBuffer(10)
	b.Append("original")

	lines := b.Lines()
	lines[0] = "mutated"
	assert.Equal(t, []string{"original"}, b.Lines())
}

func TestLogBufferLargeVolume(t *testing.T) {
	b := NewLogBuffer(100)
	for i := 0; i < 1000; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}
	lines := b.Lines()
	assert.Len(t, lines, 100)
	assert.Equal(t, "line 900", lines[0])
	assert.Equal(t, "line 999", lines[99])
}
