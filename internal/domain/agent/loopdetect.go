package agent

import (
	"hash/fnv"
	"strings"
)

// Browser-flavored task descriptions get more slack before the loop
// heuristics fire: page loads legitimately need repeated screenshots.
var browserKeywords = []string{
	"browser", "firefox", "chrome", "navigate", "go to", "gmail", "website", "url",
}

// IsBrowserTask reports whether the description looks like web navigation.
func IsBrowserTask(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range browserKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// ScreenshotTracker counts consecutive screenshot tool calls.
type ScreenshotTracker struct {
	consecutive int
	limit       int
}

// NewScreenshotTracker creates a tracker that flags after limit
// consecutive screenshots.
func NewScreenshotTracker(limit int) *ScreenshotTracker {
	if limit <= 0 {
		limit = 4
	}
	return &ScreenshotTracker{limit: limit}
}

// RecordScreenshot counts one screenshot and reports whether the run of
// consecutive screenshots now exceeds the limit.
func (t *ScreenshotTracker) RecordScreenshot() bool {
	t.consecutive++
	return t.consecutive > t.limit
}

// RecordOther resets the run: any non-screenshot tool breaks the streak.
func (t *ScreenshotTracker) RecordOther() {
	t.consecutive = 0
}

// Count returns the current streak length.
func (t *ScreenshotTracker) Count() int { return t.consecutive }

// ActionTracker detects the agent repeating the same few actions.
// Actions are fingerprinted by FNV hash of name + canonical input and
// kept in a sliding window.
type ActionTracker struct {
	window    []uint64
	size      int
	threshold int
}

// NewActionTracker creates a tracker over a window of size entries that
// flags once the window holds at least threshold entries with no more
// than two distinct fingerprints.
func NewActionTracker(size, threshold int) *ActionTracker {
	if size <= 0 {
		size = 5
	}
	if threshold <= 0 {
		threshold = 4
	}
	return &ActionTracker{size: size, threshold: threshold}
}

// Record adds an action fingerprint and reports whether a repetition
// loop is detected.
func (t *ActionTracker) Record(name, input string) bool {
	t.window = append(t.window, fingerprint(name, input))
	if len(t.window) > t.size {
		t.window = t.window[len(t.window)-t.size:]
	}
	return t.detect()
}

// Reset clears the window, giving the agent a fresh start after guidance.
func (t *ActionTracker) Reset() {
	t.window = t.window[:0]
}

func (t *ActionTracker) detect() bool {
	if len(t.window) < t.threshold {
		return false
	}
	distinct := map[uint64]struct{}{}
	for _, h := range t.window {
		distinct[h] = struct{}{}
	}
	return len(distinct) <= 2
}

func fingerprint(name, input string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(input))
	return h.Sum64()
}
