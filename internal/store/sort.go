package store

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
)

// Key is a sort column. The primary key honors the direction flag; ties always
// fall back to insertion order ascending.
type Key string

// Sort keys.
const (
	ByArrival   Key = "arrival"
	ByLocations Key = "locations"
	BySize      Key = "size"
	ByName      Key = "name"
	ByQuality   Key = "quality"
	BySpeed     Key = "speed"
)

// ParseKey validates a sort key name.
func ParseKey(s string) (Key, error) {
	switch k := Key(s); k {
	case ByArrival, ByLocations, BySize, ByName, ByQuality, BySpeed:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown sort key %q", domain.ErrInvalidSort, s)
}

// compare orders a and b by the primary key only.
func (k Key) compare(a, b *group.Group) int {
	switch k {
	case ByLocations:
		return cmp.Compare(a.LocationCount(), b.LocationCount())
	case BySize:
		return cmp.Compare(a.Size(), b.Size())
	case ByName:
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	case ByQuality:
		return cmp.Compare(a.Quality(), b.Quality())
	case BySpeed:
		return cmp.Compare(a.Speed(), b.Speed())
	}
	return cmp.Compare(a.Seq(), b.Seq())
}
