package report

import (
	"time"

	"github.com/sandeepkv93/mooncove/internal/model"
)

type Category string

const (
	CategoryWorst     Category = "Worst"
	CategoryBad       Category = "Bad"
	CategoryGood      Category = "Good"
	CategoryExcellent Category = "Excellent"
)

// Categories lists the breakdown slices from worst to best.
var Categories = []Category{CategoryWorst, CategoryBad, CategoryGood, CategoryExcellent}

type Slice struct {
	Category Category `json:"category" yaml:"category"`
	Count    int      `json:"count" yaml:"count"`
}

// Classify rates a task by how long it took to finish. Unfinished tasks
// count as bad.
func Classify(task model.Task) Category {
	d, ok := task.Duration()
	if !ok {
		return CategoryBad
	}
	switch {
	case d <= time.Hour:
		return CategoryExcellent
	case d <= 3*time.Hour:
		return CategoryGood
	case d <= 5*time.Hour:
		return CategoryBad
	default:
		return CategoryWorst
	}
}

// Breakdown counts tasks per category. With nothing to count the chart
// shows a single Worst placeholder so it never renders empty.
func Breakdown(tasks []model.Task) []Slice {
	counts := make(map[Category]int, len(Categories))
	for _, task := range tasks {
		counts[Classify(task)]++
	}
	if len(tasks) == 0 {
		counts[CategoryWorst] = 1
	}
	out := make([]Slice, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, Slice{Category: c, Count: counts[c]})
	}
	return out
}

// SessionTasks flattens the tasks of several sessions in creation order.
func SessionTasks(sessions []model.Session) []model.Task {
	out := make([]model.Task, 0)
	for _, sess := range sessions {
		out = append(out, sess.OrderedTasks()...)
	}
	return out
}

// DayRating marks a calendar day with its most common category. Ties go to
// the better category. ok is false for a day without tasks.
func DayRating(sessions []model.Session) (Category, bool) {
	tasks := SessionTasks(sessions)
	if len(tasks) == 0 {
		return "", false
	}
	counts := make(map[Category]int, len(Categories))
	for _, task := range tasks {
		counts[Classify(task)]++
	}
	best := CategoryWorst
	for _, c := range Categories {
		if counts[c] >= counts[best] {
			best = c
		}
	}
	return best, true
}

// Emoji is the calendar marker for a rating.
func (c Category) Emoji() string {
	switch c {
	case CategoryExcellent:
		return "😄"
	case CategoryGood:
		return "😊"
	case CategoryBad:
		return "😕"
	case CategoryWorst:
		return "😫"
	default:
		return ""
	}
}
