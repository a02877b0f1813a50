// Package tzres resolves a coordinate to an IANA timezone identifier using
// an embedded polygon index. Resolution is offline and best-effort; callers
// keep their fallback zone when it fails.
package tzres

import (
	"sync"

	"github.com/ringsaturn/tzf"

	appLog "athand/internal/log"
)

// Resolver maps a coordinate to a timezone identifier.
type Resolver interface {
	Resolve(lat, lng float64) (string, bool)
}

// FinderResolver wraps a tzf finder, built lazily on first use since the
// embedded index takes noticeable memory.
type FinderResolver struct {
	once   sync.Once
	finder tzf.F
	err    error
}

// NewFinderResolver returns an uninitialized resolver.
func NewFinderResolver() *FinderResolver {
	return &FinderResolver{}
}

// Resolve returns the IANA zone name for the coordinate, or ok=false when
// the index has no answer (open ocean, init failure).
func (r *FinderResolver) Resolve(lat, lng float64) (string, bool) {
	r.once.Do(func() {
		r.finder, r.err = tzf.NewDefaultFinder()
	})
	if r.err != nil {
		appLog.Error("tzres: finder init failed", r.err)
		return "", false
	}
	name := r.finder.GetTimezoneName(lng, lat)
	if name == "" {
		return "", false
	}
	return name, true
}
