// Package texthours decides whether a moment falls inside a texting-hours
// window in a given IANA timezone.
package texthours

import (
	"sync"
	"time"
	_ "time/tzdata" // embedded zone database so DST rules never depend on the host

	"go.uber.org/zap"
)

// Conservative window applied when no usable timezone is known: the UTC hour
// must be strictly between these bounds.
const (
	FallbackAfterHourUTC  = 12
	FallbackBeforeHourUTC = 21
)

// Buffers applied to the end of a window.
const (
	InitialMessageBuffer = 10 * time.Minute
	ReplyBuffer          = 2 * time.Minute
)

// Resolver loads timezones once and evaluates windows against them. It holds
// no assignability state.
type Resolver struct {
	log *zap.Logger

	mu        sync.RWMutex
	locations map[string]*time.Location
	invalid   map[string]struct{}
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		log:       log,
		locations: make(map[string]*time.Location),
		invalid:   make(map[string]struct{}),
	}
}

// Location resolves tz. It returns false for nil, empty and unknown names;
// unknown names are logged once.
func (r *Resolver) Location(tz *string) (*time.Location, bool) {
	if tz == nil || *tz == "" || *tz == "Local" {
		return nil, false
	}
	name := *tz

	r.mu.RLock()
	loc, ok := r.locations[name]
	_, bad := r.invalid[name]
	r.mu.RUnlock()
	if ok {
		return loc, true
	}
	if bad {
		return nil, false
	}

	loc, err := time.LoadLocation(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if _, seen := r.invalid[name]; !seen {
			r.invalid[name] = struct{}{}
			r.log.Warn("unknown timezone, using fallback window", zap.String("timezone", name), zap.Error(err))
		}
		return nil, false
	}
	r.locations[name] = loc
	return loc, true
}

// IsWithinWindow reports whether now lies in [startHour, endHour) local time
// in timezone, with bufferMinutes reserved before the end. A nil or invalid
// timezone yields allowNullTimezone combined with the conservative UTC window.
func (r *Resolver) IsWithinWindow(now time.Time, timezone *string, startHour, endHour, bufferMinutes int, allowNullTimezone bool) bool {
	loc, ok := r.Location(timezone)
	if !ok {
		return allowNullTimezone && InFallbackWindow(now)
	}
	return InWindow(now.In(loc), startHour, endHour, time.Duration(bufferMinutes)*time.Minute)
}

// InFallbackWindow applies the conservative window used when the timezone is
// unknown.
func InFallbackWindow(now time.Time) bool {
	h := now.UTC().Hour()
	return h > FallbackAfterHourUTC && h < FallbackBeforeHourUTC
}

// InWindow evaluates the window in local's own location. An endHour at or
// before startHour is an empty window.
func InWindow(local time.Time, startHour, endHour int, buffer time.Duration) bool {
	if endHour <= startHour {
		return false
	}
	y, m, d := local.Date()
	loc := local.Location()
	start := time.Date(y, m, d, startHour, 0, 0, 0, loc)
	end := time.Date(y, m, d, endHour, 0, 0, 0, loc)
	latest := local.Add(buffer)

	return !local.Before(start) && latest.Before(end)
}
