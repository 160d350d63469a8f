package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("strips leading separators", func(t *testing.T) {
		assert.Equal(t, "a/b", Normalize("/a/b"))
		assert.Equal(t, "a/b", Normalize("a/b"))
		assert.Equal(t, "a/b", Normalize("./a/b"))
	})

	t.Run("collapses dot segments", func(t *testing.T) {
		assert.Equal(t, "a/c", Normalize("a/b/../c"))
		assert.Equal(t, "a/b", Normalize("a/./b"))
	})

	t.Run("empty and root collapse to dot", func(t *testing.T) {
		assert.Equal(t, ".", Normalize(""))
		assert.Equal(t, ".", Normalize("/"))
		assert.Equal(t, ".", Normalize("."))
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, p := range []string{"/a/b/../c", "x/y/z", "./foo", "/"} {
			once := Normalize(p)
			assert.Equal(t, once, Normalize(once))
		}
	})
}
