package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/hitdex/internal/domain"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a group predicate with must/should/must_not boolean semantics.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("%w: too many must conditions (max %d)", domain.ErrInvalidFilter, MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("%w: too many should conditions (max %d)", domain.ErrInvalidFilter, MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("%w: too many must_not conditions (max %d)", domain.ErrInvalidFilter, MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// String returns the canonical form, used to detect whether a filter slot changed.
func (e Expression) String() string {
	var b strings.Builder
	writeGroup(&b, "must", e.must)
	writeGroup(&b, "should", e.should)
	writeGroup(&b, "must_not", e.mustNot)
	return b.String()
}

func writeGroup(b *strings.Builder, name string, cs []Condition) {
	if len(cs) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(name)
	b.WriteByte('[')
	for i, c := range cs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.String())
	}
	b.WriteByte(']')
}

// Condition is a single filter clause: either a tag match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates a tag match condition. Key must be a tag key (see IsTagKey).
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("%w: filter key is required", domain.ErrInvalidFilter)
	}
	if !IsTagKey(key) {
		return Condition{}, fmt.Errorf("%w: match on non-tag field %q", domain.ErrInvalidFilter, key)
	}
	if match == "" {
		return Condition{}, fmt.Errorf("%w: match value is required for key %q", domain.ErrInvalidFilter, key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition. Key must be a numeric key (see IsNumericKey).
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("%w: filter key is required", domain.ErrInvalidFilter)
	}
	if !IsNumericKey(key) {
		return Condition{}, fmt.Errorf("%w: range on non-numeric field %q", domain.ErrInvalidFilter, key)
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

func (c Condition) String() string {
	if c.IsRange() {
		return c.key + c.rangeExpr.String()
	}
	return c.key + "=" + strconv.Quote(c.match)
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("%w: at least one range boundary is required", domain.ErrInvalidFilter)
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("%w: cannot specify both gt and gte", domain.ErrInvalidFilter)
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("%w: cannot specify both lt and lte", domain.ErrInvalidFilter)
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v satisfies every boundary.
func (r Range) Contains(v float64) bool {
	switch {
	case r.gt != nil && v <= *r.gt:
		return false
	case r.gte != nil && v < *r.gte:
		return false
	case r.lt != nil && v >= *r.lt:
		return false
	case r.lte != nil && v > *r.lte:
		return false
	}
	return true
}

func (r Range) String() string {
	var parts []string
	add := func(op string, p *float64) {
		if p != nil {
			parts = append(parts, op+strconv.FormatFloat(*p, 'g', -1, 64))
		}
	}
	add(">", r.gt)
	add(">=", r.gte)
	add("<", r.lt)
	add("<=", r.lte)
	return "(" + strings.Join(parts, ",") + ")"
}
