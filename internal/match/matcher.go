// Package match decides whether two hits without a shared strong identity describe the same resource.
//
// A Matcher is confined to its owner: it caches normalized names and reuses stateful text
// transformers. Overlapping calls from two goroutines panic. Handing a Matcher to another
// goroutine between calls is not detected and is still a data race; keeping it on one
// goroutine is the caller's job.
package match

import (
	"math"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/hitdex/internal/domain/hit"
)

// Default edit-distance bounds.
const (
	DefaultMaxDistance = 4
	DefaultRatio       = 0.10
)

// maxCacheEntries bounds the normalization cache. Past it the cache starts over.
const maxCacheEntries = 4096

// Outcome is the result of comparing two hits, evaluated in declaration order.
type Outcome int

// Comparison outcomes. Only Match causes a merge.
const (
	Match Outcome = iota
	ExtensionMismatch
	SizeMismatch
	NameMismatch
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case ExtensionMismatch:
		return "extension"
	case SizeMismatch:
		return "size"
	case NameMismatch:
		return "name"
	}
	return "unknown"
}

// Matcher compares hits by extension, size, and bounded edit distance over normalized names.
type Matcher struct {
	maxDistance int
	ratio       float64

	busy   atomic.Bool
	folder transform.Transformer
	caser  cases.Caser
	cache  map[string]string
}

// New creates a Matcher. maxDistance caps the allowed edits; ratio scales the
// bound with the shorter name length.
func New(maxDistance int, ratio float64) *Matcher {
	if maxDistance < 0 {
		maxDistance = 0
	}
	if ratio < 0 {
		ratio = 0
	}
	return &Matcher{
		maxDistance: maxDistance,
		ratio:       ratio,
		folder:      transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		caser:       cases.Fold(),
		cache:       make(map[string]string),
	}
}

// Match compares two hits. Panics if called concurrently.
func (m *Matcher) Match(a, b *hit.Hit) Outcome {
	m.enter()
	defer m.exit()

	if !strings.EqualFold(a.Extension(), b.Extension()) {
		return ExtensionMismatch
	}
	if a.Size() != b.Size() {
		return SizeMismatch
	}

	na := m.normalize(a.Name(), a.Extension())
	nb := m.normalize(b.Name(), b.Extension())
	if na == nb {
		return Match
	}

	la, lb := utf8.RuneCountInString(na), utf8.RuneCountInString(nb)
	allowed := m.AllowedDistance(la, lb)
	if abs(la-lb) > allowed {
		return NameMismatch
	}
	if edlib.LevenshteinDistance(na, nb) > allowed {
		return NameMismatch
	}
	return Match
}

// AllowedDistance returns min(maxDistance, round(ratio × min(lenA, lenB))).
func (m *Matcher) AllowedDistance(lenA, lenB int) int {
	shorter := min(lenA, lenB)
	d := int(math.Round(m.ratio * float64(shorter)))
	return min(m.maxDistance, d)
}

// Normalize returns the comparison form of a display name: the extension stripped,
// diacritics removed, case folded, and whitespace collapsed. Panics if called concurrently.
func (m *Matcher) Normalize(name, ext string) string {
	m.enter()
	defer m.exit()
	return m.normalize(name, ext)
}

// Reset drops the normalization cache.
func (m *Matcher) Reset() {
	m.enter()
	defer m.exit()
	clear(m.cache)
}

func (m *Matcher) normalize(name, ext string) string {
	key := name + "\x00" + ext
	if n, ok := m.cache[key]; ok {
		return n
	}

	s := name
	if ext != "" && len(s) > len(ext)+1 && strings.EqualFold(s[len(s)-len(ext)-1:], "."+ext) {
		s = s[:len(s)-len(ext)-1]
	}
	if folded, _, err := transform.String(m.folder, s); err == nil {
		s = folded
	}
	s = m.caser.String(s)
	s = strings.Join(strings.Fields(s), " ")

	if len(m.cache) >= maxCacheEntries {
		clear(m.cache)
	}
	m.cache[key] = s
	return s
}

func (m *Matcher) enter() {
	if !m.busy.CompareAndSwap(false, true) {
		panic("match: overlapping Matcher calls; it must stay on its owning goroutine")
	}
}

func (m *Matcher) exit() { m.busy.Store(false) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
