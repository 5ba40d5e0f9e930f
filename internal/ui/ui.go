// Package ui provides the console color/prefix helpers the pipeline
// report and streamed task output share. Grounded on turbo's
// internal/ui/ui.go (TTY detection, colored status prefixes,
// cli.ColoredUi construction) and internal/colorcache/colorcache.go
// (assigning each target a stable color from a small rotating palette).
package ui

import (
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"
)

// IsTTY is true when stdout appears to be a terminal, per turbo's own
// isatty.IsTerminal/IsCygwinTerminal check.
var IsTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	gray = color.New(color.Faint)
	bold = color.New(color.Bold)

	// PassedPrefix, CachedPrefix, FailedPrefix mirror turbo's
	// ERROR_PREFIX/WARNING_PREFIX/InfoPrefix reverse-video status tags,
	// adapted to moon-core's action states (spec.md §4.8) instead of
	// turbo's generic log levels.
	PassedPrefix = color.New(color.Bold, color.FgGreen, color.ReverseVideo).Sprint(" PASS ")
	CachedPrefix = color.New(color.Bold, color.FgCyan, color.ReverseVideo).Sprint(" CACHED ")
	FailedPrefix = color.New(color.Bold, color.FgRed, color.ReverseVideo).Sprint(" FAIL ")
)

// Dim renders str in a faint/dimmed style.
func Dim(str string) string {
	return gray.Sprint(str)
}

// Bold renders str in bold.
func Bold(str string) string {
	return bold.Sprint(str)
}

// Default returns the console UI the pipeline report writes through: a
// plain cli.BasicUi over stdin/stdout/stderr, with no per-line prefix.
func Default() *cli.BasicUi {
	return &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
}

// colorFn renders a prefix string in one palette color, matching turbo's
// colorcache.colorFn alias.
type colorFn = func(format string, a ...interface{}) string

func palette() []colorFn {
	return []colorFn{color.CyanString, color.MagentaString, color.GreenString, color.YellowString, color.BlueString}
}

// ColorCache assigns each target a stable color the first time it's seen,
// then reuses it for every subsequent line — so a target's output is
// always the same color across a run, per spec.md §9 "Stream formatting".
type ColorCache struct {
	mu     sync.Mutex
	index  int
	colors []colorFn
	cache  map[string]colorFn
}

// NewColorCache returns an empty ColorCache.
func NewColorCache() *ColorCache {
	return &ColorCache{colors: palette(), cache: make(map[string]colorFn)}
}

func (c *ColorCache) colorFor(key string) colorFn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.cache[key]; ok {
		return fn
	}
	fn := c.colors[c.index%len(c.colors)]
	c.index++
	c.cache[key] = fn
	return fn
}

// PrefixWithColor renders prefix in key's stable color.
func (c *ColorCache) PrefixWithColor(key, prefix string) string {
	return c.colorFor(key)("%s", prefix)
}
