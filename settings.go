package saga

import (
	"fmt"
	"strings"
)

// StepSettings is the flag set attached to a step.
type StepSettings uint8

const (
	// StepNotRunOnRecovered skips the step (and its undo/post) in recovered sessions.
	StepNotRunOnRecovered StepSettings = 1 << iota
	// StepUndoOnRecover runs the undo body of the recovered step before anything else.
	StepUndoOnRecover
	// StepLogExecutionTime records how long each body of the step takes.
	StepLogExecutionTime
	// StepSameExecutorForAllActions reuses the step executor for undo/post bodies
	// that have no executor of their own.
	StepSameExecutorForAllActions
)

// StepSettingsNone is the empty flag set.
const StepSettingsNone StepSettings = 0

var stepSettingNames = []struct {
	flag StepSettings
	name string
}{
	{StepNotRunOnRecovered, "not_run_on_recovered"},
	{StepUndoOnRecover, "undo_on_recover"},
	{StepLogExecutionTime, "log_execution_time"},
	{StepSameExecutorForAllActions, "same_executor_for_all_actions"},
}

func (s StepSettings) has(flag StepSettings) bool { return s&flag == flag }

func (s StepSettings) NotRunOnRecovered() bool         { return s.has(StepNotRunOnRecovered) }
func (s StepSettings) UndoOnRecover() bool             { return s.has(StepUndoOnRecover) }
func (s StepSettings) LogExecutionTime() bool          { return s.has(StepLogExecutionTime) }
func (s StepSettings) SameExecutorForAllActions() bool { return s.has(StepSameExecutorForAllActions) }

func (s StepSettings) String() string {
	if s == StepSettingsNone {
		return "none"
	}
	parts := make([]string, 0, len(stepSettingNames))
	for _, entry := range stepSettingNames {
		if s.has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseStepSetting resolves a config name (e.g. "undo_on_recover") to its flag.
func ParseStepSetting(name string) (StepSettings, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	for _, entry := range stepSettingNames {
		if entry.name == key {
			return entry.flag, nil
		}
	}
	return StepSettingsNone, fmt.Errorf("unknown step setting %q", name)
}

// ParseStepSettings folds a list of config names into one flag set.
func ParseStepSettings(names []string) (StepSettings, error) {
	out := StepSettingsNone
	for _, name := range names {
		flag, err := ParseStepSetting(name)
		if err != nil {
			return StepSettingsNone, err
		}
		out |= flag
	}
	return out, nil
}
