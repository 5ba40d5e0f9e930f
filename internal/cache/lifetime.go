package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParseLifetime parses a human-readable duration like "7 days", "12h", or
// "30 minutes" into a time.Duration. The single-token stdlib forms
// ("12h30m") are accepted as-is; the two-token "<n> <unit>" form maps unit
// words (day/days, hour/hours, minute/minutes, second/seconds, week/weeks)
// onto stdlib durations.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("cache: empty lifetime")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, errors.Errorf("cache: invalid lifetime %q", s)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, errors.Errorf("cache: invalid lifetime quantity %q", fields[0])
	}

	unit := strings.ToLower(strings.TrimSuffix(fields[1], "s"))
	var base time.Duration
	switch unit {
	case "second", "sec":
		base = time.Second
	case "minute", "min":
		base = time.Minute
	case "hour":
		base = time.Hour
	case "day":
		base = 24 * time.Hour
	case "week":
		base = 7 * 24 * time.Hour
	default:
		return 0, errors.Errorf("cache: unknown lifetime unit %q", fields[1])
	}
	return time.Duration(n * float64(base)), nil
}

// CleanStale removes every file under outputs/ and hashes/ whose
// modification time is older than now-lifetime. It never touches states/,
// since lastRun.json is small and its own hash comparison already
// invalidates stale entries.
func (e *Engine) CleanStale(lifetime time.Duration, now time.Time) (removed int, err error) {
	cutoff := now.Add(-lifetime)
	for _, sub := range []string{string(KindOutput), string(KindHash)} {
		dir := filepath.Join(e.Root, sub)
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return removed, errors.Wrapf(readErr, "cache: reading %s directory", sub)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, infoErr := entry.Info()
			if infoErr != nil {
				return removed, errors.Wrapf(infoErr, "cache: stat %s", entry.Name())
			}
			if info.ModTime().Before(cutoff) {
				if rmErr := os.Remove(filepath.Join(dir, entry.Name())); rmErr != nil {
					return removed, errors.Wrapf(rmErr, "cache: removing stale %s", entry.Name())
				}
				removed++
			}
		}
	}
	return removed, nil
}
