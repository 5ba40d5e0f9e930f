package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorCacheIsStablePerKey(t *testing.T) {
	c := NewColorCache()
	first := c.PrefixWithColor("app:build", "app:build ")
	second := c.PrefixWithColor("app:build", "app:build ")
	assert.Equal(t, first, second)
}

func TestColorCacheAssignsDistinctColorsByDefault(t *testing.T) {
	c := NewColorCache()
	a := c.colorFor("app:build")
	b := c.colorFor("lib:build")
	// Distinct keys get distinct palette slots until the palette wraps.
	assert.Equal(t, 2, c.index)
	assert.NotEqual(t, a("%s", "x"), "") // sanity: colorFn renders non-empty
	assert.NotEqual(t, b("%s", "x"), "")
}

func TestDimAndBoldWrapText(t *testing.T) {
	assert.Contains(t, Dim("hello"), "hello")
	assert.Contains(t, Bold("hello"), "hello")
}
