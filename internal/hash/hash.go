// Package hash implements the streaming content hasher: an ordered,
// append-only log of typed records that feeds a single SHA-256 stream and,
// on finalization, also yields a JSON manifest of every record appended (for
// debuggability alongside the cache archive).
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	stdhash "hash"
	"sort"
)

// Record is one typed, ordered entry in a hash manifest.
type Record struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Manifest is the ordered list of records appended to a Hasher, in append
// order, suitable for JSON serialization alongside a cache archive.
type Manifest []Record

// Hasher accumulates typed records into a single canonical byte stream and
// a running SHA-256 digest. It is not safe for concurrent use; callers
// hashing a single task run must serialize Append calls (the task runner
// does this naturally since a task has exactly one hashing phase).
type Hasher struct {
	h        stdhash.Hash
	manifest Manifest
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Append adds a record to the log, serializes its canonical representation,
// and feeds it into the running digest. Canonical form is
// "kind\tkey\tvalue\n" — unambiguous since a well-formed key (path or id)
// never contains a tab or newline.
func (h *Hasher) Append(kind, key, value string) {
	h.manifest = append(h.manifest, Record{Kind: kind, Key: key, Value: value})
	line := fmt.Sprintf("%s\t%s\t%s\n", kind, key, value)
	_, _ = h.h.Write([]byte(line))
}

// AppendSorted appends one record per map entry, in sorted key order, so
// map iteration never leaks into the digest.
func (h *Hasher) AppendSorted(kind string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Append(kind, k, m[k])
	}
}

// AppendList appends one record per slice entry, preserving the caller's
// order (the caller is responsible for having already sorted it when order
// isn't otherwise meaningful).
func (h *Hasher) AppendList(kind string, values []string) {
	for i, v := range values {
		h.Append(kind, fmt.Sprintf("%d", i), v)
	}
}

// Finalize returns the hex digest of every record appended so far, plus the
// manifest recording them in append order. The Hasher must not be reused
// after Finalize.
func (h *Hasher) Finalize() (string, Manifest) {
	digest := h.h.Sum(nil)
	return hex.EncodeToString(digest), h.manifest
}

// MarshalManifest renders a manifest as indented JSON, the form written to
// <cache>/hashes/<hash>.json.
func MarshalManifest(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
