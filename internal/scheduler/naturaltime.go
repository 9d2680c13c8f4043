package scheduler

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var naturalTimeParser = newNaturalTimeParser()

func newNaturalTimeParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseOneShot resolves a natural-language phrase ("tomorrow at 9am", "in 20
// minutes") relative to now into an absolute time, for the schedule_task
// tool's one_shot_at input. Returns an error if no time expression is found.
func ParseOneShot(phrase string, now time.Time) (time.Time, error) {
	result, err := naturalTimeParser.Parse(phrase, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parse natural time %q: %w", phrase, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("scheduler: no time expression found in %q", phrase)
	}
	return result.Time, nil
}
