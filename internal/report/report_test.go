package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sandeepkv93/mooncove/internal/model"
)

func sessionsWith(progress ...int) []model.Session {
	out := make([]model.Session, 0, len(progress))
	for _, p := range progress {
		out = append(out, model.Session{Progress: p})
	}
	return out
}

func TestAggregateYearlyPadsAroundTwoBuckets(t *testing.T) {
	days := map[string][]model.Session{
		"2024-05-02": sessionsWith(80),
		"2023-01-10": sessionsWith(40),
	}
	got, err := Aggregate(days, ViewYearly, Options{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := []Bar{{}, {Label: "2023", Value: 40}, {Label: "2024", Value: 80}, {}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bars mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateAveragesSessionsAndCollapsedDates(t *testing.T) {
	days := map[string][]model.Session{
		"2024-03-01": sessionsWith(100, 50),
		"2024-03-20": sessionsWith(25),
		"2024-04-02": sessionsWith(),
	}
	got, err := Aggregate(days, ViewMonthly, Options{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := []Bar{{}, {Label: "March", Value: 50}, {Label: "April", Value: 0}, {}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bars mismatch (-want +got):\n%s", diff)
	}

	got, err = Aggregate(days, ViewMonthly, Options{Collapse: CollapseOverwrite})
	if err != nil {
		t.Fatalf("aggregate overwrite: %v", err)
	}
	if got[1].Value != 25 {
		t.Fatalf("overwrite should keep the latest date, got %v", got[1])
	}
}

func TestAggregateWeeklyKeepsChronologicalFirstAppearance(t *testing.T) {
	days := map[string][]model.Session{
		"2024-03-15": sessionsWith(30),
		"2024-03-07": sessionsWith(10),
		"2024-04-01": sessionsWith(90),
		"2024-03-29": sessionsWith(60),
		"2024-03-08": sessionsWith(20),
	}
	got, err := Aggregate(days, ViewWeekly, Options{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := []Bar{
		{Label: "Week 1", Value: 50},
		{Label: "Week 2", Value: 20},
		{Label: "Week 3", Value: 30},
		{Label: "Week 5", Value: 60},
		{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bars mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateClampsAndKeepsExtraBuckets(t *testing.T) {
	days := map[string][]model.Session{}
	for _, year := range []string{"2019", "2020", "2021", "2022", "2023", "2024"} {
		days[year+"-01-01"] = sessionsWith(150)
	}
	got, err := Aggregate(days, ViewYearly, Options{Slots: 5})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 bars, got %d", len(got))
	}
	for _, bar := range got {
		if bar.Value != 100 {
			t.Fatalf("expected clamped value, got %v", bar)
		}
	}
}

func TestAggregateEmptyAndInvalid(t *testing.T) {
	got, err := Aggregate(nil, ViewYearly, Options{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if diff := cmp.Diff(make([]Bar, 5), got); diff != "" {
		t.Fatalf("expected five empty bars:\n%s", diff)
	}

	_, err = Aggregate(map[string][]model.Session{"March 1": nil}, ViewYearly, Options{})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	_, err = Aggregate(nil, View("daily"), Options{})
	if !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected ErrInvalidView, got %v", err)
	}
}

func TestParseViewAndCollapse(t *testing.T) {
	if v, err := ParseView(" Monthly "); err != nil || v != ViewMonthly {
		t.Fatalf("ParseView = %q, %v", v, err)
	}
	if c, err := ParseCollapse(""); err != nil || c != CollapseAverage {
		t.Fatalf("ParseCollapse = %q, %v", c, err)
	}
	if _, err := ParseCollapse("sum"); !errors.Is(err, ErrInvalidCollapse) {
		t.Fatalf("expected ErrInvalidCollapse, got %v", err)
	}
}

func finished(created time.Time, after time.Duration) model.Task {
	done := created.Add(after)
	return model.Task{Status: model.TaskStatusCompleted, DateCreated: created, DateFinish: &done}
}

func TestBreakdownCategories(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		finished(start, 30*time.Minute),
		finished(start, time.Hour),
		finished(start, 2*time.Hour),
		finished(start, 4*time.Hour),
		finished(start, 6*time.Hour),
		{Status: model.TaskStatusInProgress, DateCreated: start},
	}
	got := Breakdown(tasks)
	want := []Slice{
		{Category: CategoryWorst, Count: 1},
		{Category: CategoryBad, Count: 2},
		{Category: CategoryGood, Count: 1},
		{Category: CategoryExcellent, Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("breakdown mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakdownEmptyShowsPlaceholder(t *testing.T) {
	got := Breakdown(nil)
	if got[0].Category != CategoryWorst || got[0].Count != 1 {
		t.Fatalf("expected worst placeholder, got %v", got)
	}
}

func TestDayRating(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sess := model.Session{Tasks: map[string]model.Task{
		"a": finished(start, 20*time.Minute),
		"b": finished(start, 6*time.Hour),
	}}
	rating, ok := DayRating([]model.Session{sess})
	if !ok || rating != CategoryExcellent {
		t.Fatalf("expected tie to favor excellent, got %q %v", rating, ok)
	}
	if rating.Emoji() == "" {
		t.Fatal("expected emoji for rating")
	}
	if _, ok := DayRating(nil); ok {
		t.Fatal("expected no rating for empty day")
	}
}
