package config

import (
	"sort"

	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// AssignPriorities returns one priority per task, in table order.
//
// Explicit priorities are kept. Otherwise keyboard tasks get the highest priority
// (maxPriorities-1), and blinkers get the levels below it ordered by period: the fastest
// period gets the highest blinker level. Equal periods share a level. Levels never drop
// below 1, so when there are more distinct periods than levels the slowest ones share 1;
// Validate rejects such tables, so only direct callers see the clamp.
func AssignPriorities(tasks []TaskConfig, maxPriorities int) []kernel.Priority {
	top := maxPriorities - 1
	if top < 1 {
		top = 1
	}

	periods := autoBlinkPeriods(tasks)
	level := make(map[int]int, len(periods))
	for i, p := range periods {
		l := top - 1 - i
		if l < 1 {
			l = 1
		}
		level[p] = l
	}

	out := make([]kernel.Priority, len(tasks))
	for i, t := range tasks {
		switch {
		case t.Priority != nil:
			out[i] = kernel.Priority(*t.Priority)
		case t.Kind == KindKeyboard:
			out[i] = kernel.Priority(top)
		default:
			out[i] = kernel.Priority(level[t.PeriodMS])
		}
	}
	return out
}

// autoBlinkPeriods returns the distinct periods of blinkers without an explicit priority,
// fastest first.
func autoBlinkPeriods(tasks []TaskConfig) []int {
	var periods []int
	seen := make(map[int]struct{})
	for _, t := range tasks {
		if t.Priority != nil || t.Kind == KindKeyboard {
			continue
		}
		if _, ok := seen[t.PeriodMS]; ok {
			continue
		}
		seen[t.PeriodMS] = struct{}{}
		periods = append(periods, t.PeriodMS)
	}
	sort.Ints(periods)
	return periods
}
