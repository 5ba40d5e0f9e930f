// Package uistream implements the per-target prefixed stdout/stderr
// writer spec.md §4.7.6c / §9 "Stream formatting" describes: "stream"
// output style forwards to the console with a prefix = target, truncated
// to the longest primary target width; stdout prefixing is done
// line-buffered at the writer; partial lines are held until newline or
// process exit to avoid interleaved fragments. Grounded on turbo's
// internal/runcache/prefixed_writer.go, generalized from "prefix every
// byte run starting a new line" to hold a trailing partial line in an
// internal buffer instead of re-prefixing on every Write call, since a
// concurrent task's stdout can arrive in arbitrary-sized chunks that
// split a line across two Write calls.
package uistream

import (
	"bytes"
	"io"
	"sync"

	"github.com/moonrepo/moon-core/internal/ui"
)

// Writer line-buffers writes and prepends prefix to each complete line
// before forwarding to the shared underlying writer, guarded by a mutex
// so concurrent targets' lines never interleave mid-line.
type Writer struct {
	mu     *sync.Mutex
	out    io.Writer
	prefix string
	pend   []byte
}

// NewWriter returns a Writer that prefixes every complete line written to
// it with prefix before forwarding to out. mu, when non-nil, is shared
// across every Writer writing to the same out so their line writes
// serialize; pass nil to use a private mutex (single-target use).
func NewWriter(out io.Writer, prefix string, mu *sync.Mutex) *Writer {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Writer{mu: mu, out: out, prefix: prefix}
}

// Write buffers p and flushes every complete ("\n"-terminated) line it now
// contains, holding back a trailing partial line until the next Write or
// Close/Flush.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pend = append(w.pend, p...)
	for {
		idx := bytes.IndexByte(w.pend, '\n')
		if idx < 0 {
			break
		}
		line := w.pend[:idx+1]
		if _, err := w.out.Write(append([]byte(w.prefix), line...)); err != nil {
			return 0, err
		}
		w.pend = w.pend[idx+1:]
	}
	return len(p), nil
}

// Flush writes any held partial line (process-exit case from spec.md §9),
// appending a trailing newline so it renders on its own line.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pend) == 0 {
		return nil
	}
	_, err := w.out.Write(append(append([]byte(w.prefix), w.pend...), '\n'))
	w.pend = nil
	return err
}

// PrefixWidth returns the length of the longest target string, for
// padding every stream prefix to a common column per spec.md §4.7.6c.
func PrefixWidth(targets []string) int {
	width := 0
	for _, t := range targets {
		if len(t) > width {
			width = len(t)
		}
	}
	return width
}

// PadPrefix pads target to width (truncating if target is already longer)
// and appends the "target " separator uistream writes before each line.
func PadPrefix(target string, width int) string {
	if len(target) > width {
		return target[:width] + " "
	}
	return target + spaces(width-len(target)) + " "
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return string(bytes.Repeat([]byte{' '}, n))
}

// Registry hands out one color-coded, width-padded Writer per target,
// all serialized against a single shared mutex so two targets' stdout
// never interleaves mid-line on the underlying console writer.
type Registry struct {
	out    io.Writer
	mu     sync.Mutex
	width  int
	colors *ui.ColorCache
}

// NewRegistry builds a Registry writing to out, padding every prefix to
// the longest name in targets.
func NewRegistry(out io.Writer, targets []string) *Registry {
	return &Registry{out: out, width: PrefixWidth(targets), colors: ui.NewColorCache()}
}

// For returns the Writer for target, creating its padded, colored prefix
// on first use.
func (r *Registry) For(target string) *Writer {
	prefix := r.colors.PrefixWithColor(target, PadPrefix(target, r.width))
	return NewWriter(r.out, prefix, &r.mu)
}
