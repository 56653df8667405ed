package humanize

import (
	"fmt"
	"time"
)

const (
	secondsPerMinute = int64(time.Minute / time.Second)
	secondsPerHour   = int64(time.Hour / time.Second)
	secondsPerDay    = 24 * secondsPerHour
)

// Duration returns the largest whole unit of the given amount of seconds, ex.:
//
//	45 -> "45 seconds"
//	3661 -> "1 hour"
//	90000 -> "1 day"
func Duration(seconds int64) string {
	switch {
	case seconds < secondsPerMinute:
		return plural(seconds, "second")
	case seconds < secondsPerHour:
		return plural(seconds/secondsPerMinute, "minute")
	case seconds < secondsPerDay:
		return plural(seconds/secondsPerHour, "hour")
	default:
		return plural(seconds/secondsPerDay, "day")
	}
}

func plural(num int64, unit string) string {
	if num == 1 {
		return fmt.Sprintf("%d %s", num, unit)
	}

	return fmt.Sprintf("%d %ss", num, unit)
}
