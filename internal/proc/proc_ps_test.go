//go:build !linux && !windows

package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePS(t *testing.T) {
	out := []byte("    1     0\n  412     1\n  garbage\n  413   412\n")
	assert.Equal(t, map[int]int{1: 0, 412: 1, 413: 412}, parsePS(out))
}
