package transform

import (
	"time"

	"github.com/ringsaturn/tzf"

	"fieldrouter/internal/logger"
)

// TimezoneResolver maps a coordinate to an IANA timezone name. ok is false
// when the point cannot be resolved.
type TimezoneResolver interface {
	Resolve(lon, lat float64) (string, bool)
}

type tzfResolver struct {
	finder tzf.F
}

// NewTimezoneResolver builds the coordinate→timezone resolver. Construction
// is expensive (embedded polygon data); build once and share.
func NewTimezoneResolver() (TimezoneResolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, err
	}
	return &tzfResolver{finder: finder}, nil
}

func (r *tzfResolver) Resolve(lon, lat float64) (string, bool) {
	name := r.finder.GetTimezoneName(lon, lat)
	return name, name != ""
}

// localize converts ts into the best-effort local time of a waypoint:
// timezone by coordinate first, then the conservation area's configured
// timezone, then UTC.
func localize(ts time.Time, lon, lat float64, configured string, resolver TimezoneResolver) time.Time {
	names := make([]string, 0, 2)
	if resolver != nil && !(lon == 0 && lat == 0) {
		if name, ok := resolver.Resolve(lon, lat); ok {
			names = append(names, name)
		}
	}
	if configured != "" {
		names = append(names, configured)
	}

	for _, name := range names {
		loc, err := time.LoadLocation(name)
		if err != nil {
			log := logger.WithComponent("transform.smart")
			log.Warn().
				Str("timezone", name).
				Msg("unknown timezone name, trying fallback")
			continue
		}
		return ts.In(loc)
	}
	return ts.UTC()
}
