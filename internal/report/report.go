// Package report turns daily sessions into chart data.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/mooncove/internal/model"
)

const (
	DateLayout   = "2006-01-02"
	DefaultSlots = 5
)

var (
	ErrInvalidDate     = errors.New("report: invalid date")
	ErrInvalidView     = errors.New("report: invalid view")
	ErrInvalidCollapse = errors.New("report: invalid collapse mode")
)

type View string

const (
	ViewYearly  View = "yearly"
	ViewMonthly View = "monthly"
	ViewWeekly  View = "weekly"
)

func ParseView(raw string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(raw))); v {
	case ViewYearly, ViewMonthly, ViewWeekly:
		return v, nil
	case "":
		return ViewYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidView, raw)
	}
}

// Collapse decides how several dates that map to one bucket combine.
type Collapse string

const (
	CollapseAverage   Collapse = "average"
	CollapseOverwrite Collapse = "overwrite"
)

func ParseCollapse(raw string) (Collapse, error) {
	switch c := Collapse(strings.ToLower(strings.TrimSpace(raw))); c {
	case CollapseAverage, CollapseOverwrite:
		return c, nil
	case "":
		return CollapseAverage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCollapse, raw)
	}
}

type Options struct {
	Slots    int
	Collapse Collapse
}

// Bar is one chart column. An empty label marks padding.
type Bar struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

type bucket struct {
	label string
	sum   float64
	count int
	last  float64
}

// Aggregate averages session progress per date, groups the dates by view
// and pads the result to opts.Slots bars.
func Aggregate(days map[string][]model.Session, view View, opts Options) ([]Bar, error) {
	if opts.Slots <= 0 {
		opts.Slots = DefaultSlots
	}
	if opts.Collapse == "" {
		opts.Collapse = CollapseAverage
	}
	if _, err := ParseView(string(view)); err != nil {
		return nil, err
	}
	if _, err := ParseCollapse(string(opts.Collapse)); err != nil {
		return nil, err
	}

	type dated struct {
		date string
		at   time.Time
	}
	dates := make([]dated, 0, len(days))
	for date := range days {
		at, err := time.Parse(DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		dates = append(dates, dated{date: date, at: at})
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].at.Before(dates[j].at) })

	order := make([]string, 0)
	buckets := make(map[string]*bucket)
	for _, d := range dates {
		key := bucketKey(d.at, view)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{label: key}
			buckets[key] = b
			order = append(order, key)
		}
		mean := dailyMean(days[d.date])
		b.sum += mean
		b.count++
		b.last = mean
	}
	if view == ViewYearly {
		sort.Strings(order)
	}

	bars := make([]Bar, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		value := b.last
		if opts.Collapse == CollapseAverage {
			value = b.sum / float64(b.count)
		}
		bars = append(bars, Bar{Label: key, Value: clamp(value)})
	}
	return pad(bars, opts.Slots), nil
}

func bucketKey(at time.Time, view View) string {
	switch view {
	case ViewMonthly:
		return at.Month().String()
	case ViewWeekly:
		return "Week " + strconv.Itoa((at.Day()+6)/7)
	default:
		return strconv.Itoa(at.Year())
	}
}

func dailyMean(sessions []model.Session) float64 {
	if len(sessions) == 0 {
		return 0
	}
	total := 0
	for _, sess := range sessions {
		total += sess.Progress
	}
	return float64(total) / float64(len(sessions))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// pad centers bars in a fixed number of slots, putting the odd empty slot
// on the right.
func pad(bars []Bar, slots int) []Bar {
	missing := slots - len(bars)
	if missing <= 0 {
		return bars
	}
	left := missing / 2
	out := make([]Bar, 0, slots)
	out = append(out, make([]Bar, left)...)
	out = append(out, bars...)
	out = append(out, make([]Bar, missing-left)...)
	return out
}
