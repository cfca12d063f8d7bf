package cron

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	triggerSeparator  = ";"
	scheduleSeparator = ":"
	runListSeparator  = ","
)

// TriggerSpec is one parsed trigger: the run definitions it starts and the
// cron schedule that fires it.
type TriggerSpec struct {
	Runs     []string
	CronSpec string
}

// ParseTriggerSpecs parses a multi-trigger specification.
// The format is: run1,run2:cron_expression;run3:cron_expression2
//
// Example:
//
//	"sub-01,sub-02:0 2 * * *;sub-03:0 4 * * *"
//
// Returns an error if a trigger is missing runs or a schedule, a run name is
// not among availableRuns, a cron expression is invalid, or a trigger lists
// the same run twice.
func ParseTriggerSpecs(spec string, availableRuns map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	triggerStrs := strings.Split(spec, triggerSeparator)
	specs := make([]TriggerSpec, 0, len(triggerStrs))

	for _, triggerStr := range triggerStrs {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue // tolerate a trailing semicolon
		}

		triggerSpec, err := parseSingleTrigger(triggerStr, availableRuns)
		if err != nil {
			return nil, err
		}
		specs = append(specs, triggerSpec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

// parseSingleTrigger parses one "runs:schedule" trigger.
func parseSingleTrigger(triggerStr string, availableRuns map[string]bool) (TriggerSpec, error) {
	parts := strings.Split(triggerStr, scheduleSeparator)
	if len(parts) != 2 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'runs:cron', got %q", triggerStr)
	}

	runsStr := strings.TrimSpace(parts[0])
	cronSpec := strings.TrimSpace(parts[1])

	if runsStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing runs in %q", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in %q", triggerStr)
	}

	runStrs := strings.Split(runsStr, runListSeparator)
	runs := make([]string, 0, len(runStrs))
	seen := make(map[string]bool, len(runStrs))

	for _, name := range runStrs {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if seen[name] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate run %q in %q", name, triggerStr)
		}
		seen[name] = true

		if !availableRuns[name] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown run %q in %q (available: %s)",
				name, triggerStr, formatAvailableRuns(availableRuns))
		}
		runs = append(runs, name)
	}

	if len(runs) == 0 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid runs in %q", triggerStr)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in %q: %w", triggerStr, err)
	}

	return TriggerSpec{Runs: runs, CronSpec: cronSpec}, nil
}

// formatAvailableRuns renders the known run names for error messages.
func formatAvailableRuns(availableRuns map[string]bool) string {
	runs := make([]string, 0, len(availableRuns))
	for name := range availableRuns {
		runs = append(runs, name)
	}
	sort.Strings(runs)
	return strings.Join(runs, ", ")
}
