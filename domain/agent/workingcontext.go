package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContextKey returns the working-context key for a tool output.
func ContextKey(toolName string, iteration int) string {
	return fmt.Sprintf("%s#%d", toolName, iteration)
}

// ClarificationKey returns the working-context key for the n-th user answer.
func ClarificationKey(n int) string {
	return fmt.Sprintf("clarification#%d", n)
}

// TruncationMarker is appended to values cut at the per-entry limit.
const TruncationMarker = "...[truncated]"

// ContextLimits bound the size of the working context.
type ContextLimits struct {
	// MaxEntries is the maximum number of retained entries (0 = unlimited).
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// MaxEntryBytes caps a single stored value (0 = unlimited).
	MaxEntryBytes int `json:"max_entry_bytes" yaml:"max_entry_bytes"`

	// MaxTotalBytes caps the sum of all retained values (0 = unlimited).
	MaxTotalBytes int `json:"max_total_bytes" yaml:"max_total_bytes"`
}

// DefaultContextLimits returns the default working-context bounds.
func DefaultContextLimits() ContextLimits {
	return ContextLimits{
		MaxEntries:    32,
		MaxEntryBytes: 8 * 1024,
		MaxTotalBytes: 64 * 1024,
	}
}

// ContextEntry is one key/value pair of the working context.
type ContextEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ContextSummary is the bounded view of the working context handed to
// the action selector.
type ContextSummary struct {
	Entries []ContextEntry `json:"entries"`

	// Evicted counts entries dropped to stay within the limits.
	Evicted int `json:"evicted,omitempty"`
	// EvictedKeys lists the most recently evicted keys, oldest first.
	EvictedKeys []string `json:"evicted_keys,omitempty"`
}

// Markers returns the human-readable truncation markers of the summary.
func (s ContextSummary) Markers() []string {
	var markers []string
	if s.Evicted > 0 {
		markers = append(markers, fmt.Sprintf("[%d older entries evicted: %s]", s.Evicted, strings.Join(s.EvictedKeys, ", ")))
	}
	for _, e := range s.Entries {
		if e.Truncated {
			markers = append(markers, fmt.Sprintf("[%s truncated]", e.Key))
		}
	}
	return markers
}

// maxRememberedEvictions bounds EvictedKeys.
const maxRememberedEvictions = 8

// WorkingContext is an insertion-ordered, size-bounded map of tool outputs.
// When a limit is exceeded the oldest entries are evicted first.
type WorkingContext struct {
	limits      ContextLimits
	entries     []ContextEntry
	total       int
	evicted     int
	evictedKeys []string
}

// NewWorkingContext creates an empty working context with the given limits.
func NewWorkingContext(limits ContextLimits) *WorkingContext {
	return &WorkingContext{limits: limits}
}

// Set stores value under key. An existing key is overwritten and becomes
// the newest entry.
func (w *WorkingContext) Set(key, value string) {
	entry := ContextEntry{Key: key, Value: value}
	if limit := w.limits.MaxEntryBytes; limit > 0 && len(value) > limit {
		entry.Value = cutRunes(value, limit) + TruncationMarker
		entry.Truncated = true
	}

	if i := w.index(key); i >= 0 {
		w.total -= len(w.entries[i].Value)
		w.entries = append(w.entries[:i], w.entries[i+1:]...)
	}
	w.entries = append(w.entries, entry)
	w.total += len(entry.Value)
	w.evict()
}

// Get returns the value stored under key.
func (w *WorkingContext) Get(key string) (string, bool) {
	if i := w.index(key); i >= 0 {
		return w.entries[i].Value, true
	}
	return "", false
}

// Len returns the number of retained entries.
func (w *WorkingContext) Len() int {
	return len(w.entries)
}

// Keys returns the retained keys, oldest first.
func (w *WorkingContext) Keys() []string {
	keys := make([]string, len(w.entries))
	for i, e := range w.entries {
		keys[i] = e.Key
	}
	return keys
}

// TotalBytes returns the sum of retained value sizes.
func (w *WorkingContext) TotalBytes() int {
	return w.total
}

// Summary returns a copy of the retained entries with eviction markers.
func (w *WorkingContext) Summary() ContextSummary {
	entries := make([]ContextEntry, len(w.entries))
	copy(entries, w.entries)
	var keys []string
	if len(w.evictedKeys) > 0 {
		keys = make([]string, len(w.evictedKeys))
		copy(keys, w.evictedKeys)
	}
	return ContextSummary{Entries: entries, Evicted: w.evicted, EvictedKeys: keys}
}

// evict drops the oldest entries until all limits hold. The newest entry is
// always kept.
func (w *WorkingContext) evict() {
	for len(w.entries) > 1 && w.overLimit() {
		oldest := w.entries[0]
		w.entries = w.entries[1:]
		w.total -= len(oldest.Value)
		w.evicted++
		w.evictedKeys = append(w.evictedKeys, oldest.Key)
		if len(w.evictedKeys) > maxRememberedEvictions {
			w.evictedKeys = w.evictedKeys[1:]
		}
	}
}

func (w *WorkingContext) overLimit() bool {
	if w.limits.MaxEntries > 0 && len(w.entries) > w.limits.MaxEntries {
		return true
	}
	return w.limits.MaxTotalBytes > 0 && w.total > w.limits.MaxTotalBytes
}

func (w *WorkingContext) index(key string) int {
	for i, e := range w.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// cutRunes returns the longest prefix of s within n bytes that does not
// split a rune.
func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
