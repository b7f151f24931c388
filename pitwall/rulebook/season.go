package rulebook

import (
	"context"
	"time"
)

// seasonOverDay is the December day after which the next season's rules apply.
const seasonOverDay = 10

// DefaultYear picks the regulations year when none is asked for: the current
// year, or next year once the season is over and next year's rules exist.
func DefaultYear(now time.Time, hasYear func(int) bool) int {
	year := now.Year()
	if now.Month() == time.December && now.Day() > seasonOverDay && hasYear != nil && hasYear(year+1) {
		return year + 1
	}
	return year
}

// DefaultYear resolves the default regulations year against the index.
func (s *Store) DefaultYear(ctx context.Context, now time.Time) int {
	return DefaultYear(now, func(y int) bool {
		ok, err := s.HasYear(ctx, y)
		if err != nil {
			s.logger.Debug().Err(err).Int("year", y).Msg("year lookup failed")
			return false
		}
		return ok
	})
}
