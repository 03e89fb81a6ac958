package attendance

import (
	"testing"
	"time"
)

func TestReconcilerMonthlyView(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2024, time.June, 7, 15, 30, 0, 0, time.UTC) } // Friday
	defer func() { NowFunc = time.Now }()

	rec := NewReconciler(Subject{ID: "std-1", RegNo: "DRS-001"}, 7)
	snap := Snapshot{
		{Date: "2024-06-03", PresentStudents: []string{"std-1", "std-2"}, MarkedAt: date(2024, time.June, 3)},
		{Date: "2024-06-04", PresentStudents: []string{"DRS-001"}, MarkedAt: date(2024, time.June, 4)}, // via reg no
		{Date: "2024-06-05", PresentStudents: []string{"std-2"}, MarkedAt: date(2024, time.June, 5)},
		{Date: "2024-06-09", PresentStudents: []string{"std-1"}}, // Sunday, no skeleton slot
		{Date: "2024-06-28", PresentStudents: []string{"std-1"}}, // future
	}

	views, monthlyChanged, weeklyChanged := rec.Reconcile(snap, NowFunc())
	if !monthlyChanged || !weeklyChanged {
		t.Fatalf("Reconcile() changed = (%t, %t), want (true, true)", monthlyChanged, weeklyChanged)
	}

	m := views.Monthly
	if m.Month != "2024-06" {
		t.Errorf("Month = %q, want 2024-06", m.Month)
	}
	// June 2024: Sat 1st, then Mon 3rd - Fri 7th; Sunday skipped
	if m.TotalDays != 6 {
		t.Errorf("TotalDays = %d, want 6", m.TotalDays)
	}
	if m.PresentDays != 2 {
		t.Errorf("PresentDays = %d, want 2", m.PresentDays)
	}
	if m.AbsentDays != 4 {
		t.Errorf("AbsentDays = %d, want 4", m.AbsentDays)
	}
	if m.Percentage != 33 {
		t.Errorf("Percentage = %d, want 33", m.Percentage)
	}
	if m.TotalHours != 14 {
		t.Errorf("TotalHours = %d, want 14", m.TotalHours)
	}
	if m.AverageHours != 7 {
		t.Errorf("AverageHours = %v, want 7", m.AverageHours)
	}

	byDate := make(map[string]DailyFact, len(m.Days))
	for _, fact := range m.Days {
		byDate[fact.Date] = fact
	}
	if byDate["2024-06-03"].Status != StatusPresent {
		t.Errorf("2024-06-03 status = %q, want present", byDate["2024-06-03"].Status)
	}
	if byDate["2024-06-04"].Status != StatusPresent {
		t.Errorf("2024-06-04 status = %q, want present (reg no match)", byDate["2024-06-04"].Status)
	}
	if byDate["2024-06-05"].Status != StatusAbsent {
		t.Errorf("2024-06-05 status = %q, want absent", byDate["2024-06-05"].Status)
	}
	if _, ok := byDate["2024-06-09"]; ok {
		t.Error("Sunday must not appear in the monthly skeleton")
	}
	if _, ok := byDate["2024-06-28"]; ok {
		t.Error("future dates must not appear in the monthly skeleton")
	}
}

func TestReconcilerWeeklyView(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2024, time.June, 7, 15, 30, 0, 0, time.UTC) } // Friday
	defer func() { NowFunc = time.Now }()

	rec := NewReconciler(Subject{ID: "std-1"}, 4)
	snap := Snapshot{
		{Date: "2024-06-03", PresentStudents: []string{"std-1"}, Hours: 6, MarkedAt: date(2024, time.June, 3)},
	}

	views, _, _ := rec.Reconcile(snap, NowFunc())
	week := views.Weekly

	// Mon 3rd through Fri 7th (today), plus the synthetic Sunday
	if len(week) != 6 {
		t.Fatalf("len(weekly) = %d, want 6", len(week))
	}
	if week[0].Date != "2024-06-03" || week[0].Status != StatusPresent || week[0].Hours != 6 {
		t.Errorf("monday fact = %+v, want present with 6 hours", week[0])
	}
	for _, fact := range week[1:5] {
		if fact.Status != StatusAbsent {
			t.Errorf("%s status = %q, want absent", fact.Date, fact.Status)
		}
	}
	sunday := week[len(week)-1]
	if sunday.Date != "2024-06-09" || sunday.Status != StatusHoliday {
		t.Errorf("sunday fact = %+v, want 2024-06-09 holiday", sunday)
	}
}

func TestReconcilerSuppressesUnchangedResults(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2024, time.June, 7, 15, 30, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	rec := NewReconciler(Subject{ID: "std-1"}, 7)
	snap := Snapshot{
		{Date: "2024-06-03", PresentStudents: []string{"std-1"}, MarkedAt: date(2024, time.June, 3)},
	}

	if _, monthlyChanged, weeklyChanged := rec.Reconcile(snap, NowFunc()); !monthlyChanged || !weeklyChanged {
		t.Fatal("first pass must report both views changed")
	}
	if _, monthlyChanged, weeklyChanged := rec.Reconcile(snap, NowFunc()); monthlyChanged || weeklyChanged {
		t.Error("identical pass must report no change")
	}

	// an update for another subject leaves this subject's views untouched
	other := Snapshot{
		{Date: "2024-06-03", PresentStudents: []string{"std-1"}, MarkedAt: date(2024, time.June, 3)},
		{Date: "2024-06-04", PresentStudents: []string{"std-9"}, MarkedAt: date(2024, time.June, 4)},
	}
	if _, monthlyChanged, weeklyChanged := rec.Reconcile(other, NowFunc()); monthlyChanged || weeklyChanged {
		t.Error("pass affecting only another subject must report no change")
	}
}

func TestReconcilerEmptySnapshot(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2024, time.June, 7, 15, 30, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	rec := NewReconciler(Subject{ID: "std-1"}, 7)
	views, _, _ := rec.Reconcile(nil, NowFunc())

	m := views.Monthly
	if m.TotalDays != 6 || m.PresentDays != 0 || m.AbsentDays != 6 {
		t.Errorf("counters = (%d, %d, %d), want (6, 0, 6)", m.TotalDays, m.PresentDays, m.AbsentDays)
	}
	if m.Percentage != 0 || m.TotalHours != 0 || m.AverageHours != 0 {
		t.Errorf("aggregates = (%d, %d, %v), want zeros", m.Percentage, m.TotalHours, m.AverageHours)
	}
}
