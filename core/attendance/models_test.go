package attendance

import (
	"reflect"
	"testing"
)

func TestDateRangeContains(t *testing.T) {
	tests := []struct {
		name string
		rng  DateRange
		day  string
		want bool
	}{
		{"open range", DateRange{}, "2024-06-03", true},
		{"inside", DateRange{From: "2024-06-01", To: "2024-06-07"}, "2024-06-03", true},
		{"on from bound", DateRange{From: "2024-06-03"}, "2024-06-03", true},
		{"on to bound", DateRange{To: "2024-06-03"}, "2024-06-03", true},
		{"before", DateRange{From: "2024-06-04"}, "2024-06-03", false},
		{"after", DateRange{To: "2024-06-02"}, "2024-06-03", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rng.Contains(tt.day); got != tt.want {
				t.Errorf("Contains(%q) = %t; want %t", tt.day, got, tt.want)
			}
		})
	}
}

func TestDateRangeValidate(t *testing.T) {
	if err := (&DateRange{From: "2024-06-01", To: "2024-06-07"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v; want nil", err)
	}
	if err := (&DateRange{}).Validate(); err != nil {
		t.Errorf("Validate() on open range error = %v; want nil", err)
	}
	if err := (&DateRange{From: "junk"}).Validate(); err == nil {
		t.Error("Validate() accepted a malformed bound")
	}
}

func TestMarkAttendanceValidate(t *testing.T) {
	ma := MarkAttendance{
		CourseID:          " c-1 ",
		Date:              "2024-06-03",
		PresentStudentIDs: []string{"std-2", " std-1", "std-2", "", "std-1 "},
		MarkedBy:          "tch-1",
		MarkedByRole:      "teacher",
	}
	if err := ma.Validate(); err != nil {
		t.Fatalf("Validate() error = %v; want nil", err)
	}
	if ma.CourseID != "c-1" {
		t.Errorf("CourseID = %q; want trimmed", ma.CourseID)
	}
	if want := []string{"std-1", "std-2"}; !reflect.DeepEqual(ma.PresentStudentIDs, want) {
		t.Errorf("PresentStudentIDs = %v; want %v (deduped, sorted)", ma.PresentStudentIDs, want)
	}

	for _, bad := range []MarkAttendance{
		{Date: "2024-06-03", MarkedBy: "t", MarkedByRole: "teacher"},                     // no course
		{CourseID: "c-1", MarkedBy: "t", MarkedByRole: "teacher"},                        // no date
		{CourseID: "c-1", Date: "2024-13-40", MarkedBy: "t", MarkedByRole: "teacher"},    // impossible date
		{CourseID: "c-1", Date: "June 3rd 2024", MarkedBy: "t", MarkedByRole: "teacher"}, // wrong format
		{CourseID: "c-1", Date: "2024-06-03", MarkedByRole: "teacher"},                   // no marker
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("Validate() accepted %+v", bad)
		}
	}
}
