package filter

import (
	"strings"

	"github.com/kailas-cloud/hitdex/internal/domain/group"
)

// Tag and numeric keys understood by the evaluator. Metadata is addressed as "meta.<key>".
const (
	KeyExtension = "extension"
	KeyName      = "name"
	KeyIdentity  = "identity"
	MetaPrefix   = "meta."

	KeySize      = "size"
	KeyLocations = "locations"
	KeyQuality   = "quality"
	KeySpeed     = "speed"
)

// IsTagKey reports whether key can be used in a match condition.
func IsTagKey(key string) bool {
	switch key {
	case KeyExtension, KeyName, KeyIdentity:
		return true
	}
	return strings.HasPrefix(key, MetaPrefix) && len(key) > len(MetaPrefix)
}

// IsNumericKey reports whether key can be used in a range condition.
func IsNumericKey(key string) bool {
	switch key {
	case KeySize, KeyLocations, KeyQuality, KeySpeed:
		return true
	}
	return false
}

// Name returns the canonical form of the expression.
func (e Expression) Name() string { return e.String() }

// Accept reports whether the group satisfies the expression.
// An empty expression accepts every group.
func (e Expression) Accept(g *group.Group) bool {
	for _, c := range e.must {
		if !c.accept(g) {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.accept(g) {
			return false
		}
	}
	if len(e.should) == 0 {
		return true
	}
	for _, c := range e.should {
		if c.accept(g) {
			return true
		}
	}
	return false
}

func (c Condition) accept(g *group.Group) bool {
	if c.IsRange() {
		v, ok := numeric(g, c.key)
		return ok && c.rangeExpr.Contains(v)
	}
	switch c.key {
	case KeyExtension:
		return strings.EqualFold(g.Extension(), c.match)
	case KeyName:
		return strings.Contains(strings.ToLower(g.Name()), strings.ToLower(c.match))
	case KeyIdentity:
		return !g.Identity().IsZero() && strings.EqualFold(g.Identity().String(), c.match)
	}
	if strings.HasPrefix(c.key, MetaPrefix) {
		v, ok := g.Metadata()[c.key[len(MetaPrefix):]]
		return ok && v == c.match
	}
	return false
}

func numeric(g *group.Group, key string) (float64, bool) {
	switch key {
	case KeySize:
		return float64(g.Size()), true
	case KeyLocations:
		return float64(g.LocationCount()), true
	case KeyQuality:
		return float64(g.Quality()), true
	case KeySpeed:
		return float64(g.Speed()), true
	}
	return 0, false
}
