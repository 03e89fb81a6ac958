package attendance

import "time"

var NowFunc = time.Now // mockable

// day truncates t to calendar-day granularity in UTC.
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func today() time.Time { return day(NowFunc()) }

// WeekdaysBetween counts the calendar days in [start, min(end, now)] whose
// day-of-week is Monday through Friday. Both bounds are inclusive and
// day-granular, so repeated calls during the same day are stable.
// Used as the "total expected classes" denominator.
func WeekdaysBetween(start, end time.Time) int {
	from, to := day(start), day(end)
	if now := today(); to.After(now) {
		to = now
	}
	if from.After(to) {
		return 0
	}

	var n int
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			n++
		}
	}
	return n
}
