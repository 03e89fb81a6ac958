package attendance

import (
	"math"
	"reflect"
	"time"
)

// fallbackSessionHours is assumed when neither the date record nor the
// configuration declares a session length.
const fallbackSessionHours = 7

// Reconciler converts raw per-date records into per-day presence facts for
// one subject and derives the monthly and weekly views. It keeps the last
// computed results so unchanged recomputations can be suppressed.
type Reconciler struct {
	subject      Subject
	defaultHours int

	lastMonthly *MonthlySummary
	lastWeekly  []DailyFact
}

func NewReconciler(subject Subject, defaultHours int) *Reconciler {
	if defaultHours <= 0 {
		defaultHours = fallbackSessionHours
	}
	return &Reconciler{subject: subject, defaultHours: defaultHours}
}

// Reconcile rebuilds both views from one authoritative snapshot. month
// anchors the monthly skeleton (any instant within the target month).
// The changed flags report whether each view differs from the previously
// computed one; deep-equal results need not be re-delivered.
func (r *Reconciler) Reconcile(snap Snapshot, month time.Time) (v Views, monthlyChanged, weeklyChanged bool) {
	now := today()

	monthDays := r.monthSkeleton(month, now)
	weekDays := r.weekSkeleton(now)

	index := make(map[string]*DailyFact, len(monthDays)+len(weekDays))
	for i := range monthDays {
		index[monthDays[i].Date] = &monthDays[i]
	}
	weekIndex := make(map[string]*DailyFact, len(weekDays))
	for i := range weekDays {
		weekIndex[weekDays[i].Date] = &weekDays[i]
	}

	for _, rec := range snap {
		if !r.subject.presentIn(rec.PresentStudents) {
			continue
		}
		hours := rec.Hours
		if hours <= 0 {
			hours = r.defaultHours
		}
		if fact, ok := index[rec.Date]; ok {
			fact.Status = StatusPresent
			fact.Hours = hours
			fact.MarkedAt = rec.MarkedAt
		}
		if fact, ok := weekIndex[rec.Date]; ok && fact.Status != StatusHoliday {
			fact.Status = StatusPresent
			fact.Hours = hours
			fact.MarkedAt = rec.MarkedAt
		}
	}

	monthly := r.aggregate(month, monthDays)

	monthlyChanged = !reflect.DeepEqual(r.lastMonthly, monthly)
	weeklyChanged = !reflect.DeepEqual(r.lastWeekly, weekDays)
	r.lastMonthly = monthly
	r.lastWeekly = weekDays

	return Views{Monthly: monthly, Weekly: weekDays}, monthlyChanged, weeklyChanged
}

// monthSkeleton builds one default-absent fact per class day (Mon-Sat) of
// the target month, up to and including today.
func (r *Reconciler) monthSkeleton(month, now time.Time) []DailyFact {
	var days []DailyFact
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	for d := first; d.Month() == first.Month() && !d.After(now); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, DailyFact{Date: d.Format(DayLayout), Status: StatusAbsent})
	}
	return days
}

// weekSkeleton builds the current Mon-Sat window the same way, plus a
// synthetic Sunday holiday entry closing the week.
func (r *Reconciler) weekSkeleton(now time.Time) []DailyFact {
	monday := startOfWeek(now)
	var days []DailyFact
	for i := 0; i < 6; i++ {
		d := monday.AddDate(0, 0, i)
		if d.After(now) {
			break
		}
		days = append(days, DailyFact{Date: d.Format(DayLayout), Status: StatusAbsent})
	}
	sunday := monday.AddDate(0, 0, 6)
	days = append(days, DailyFact{Date: sunday.Format(DayLayout), Status: StatusHoliday})
	return days
}

// aggregate computes the monthly counters. Holiday facts never occur in the
// monthly skeleton and future facts are never built, so every fact counts.
func (r *Reconciler) aggregate(month time.Time, days []DailyFact) *MonthlySummary {
	sum := &MonthlySummary{
		Month: month.Format("2006-01"),
		Days:  days,
	}
	for _, fact := range days {
		if fact.Status == StatusHoliday {
			continue
		}
		sum.TotalDays++
		if fact.Status == StatusPresent {
			sum.PresentDays++
			sum.TotalHours += fact.Hours
		} else {
			sum.AbsentDays++
		}
	}
	if sum.TotalDays > 0 {
		sum.Percentage = int(math.Round(float64(sum.PresentDays) / float64(sum.TotalDays) * 100))
	}
	if sum.PresentDays > 0 {
		avg := float64(sum.TotalHours) / float64(sum.PresentDays)
		sum.AverageHours = math.Round(avg*100) / 100
	}
	return sum
}

// startOfWeek returns the Monday of the week containing t.
func startOfWeek(t time.Time) time.Time {
	t = day(t)
	wd := int(t.Weekday())
	if wd == 0 { // Sunday closes the week, it does not start one
		wd = 7
	}
	return t.AddDate(0, 0, -(wd - 1))
}
