package core

import (
	"strings"
)

// ValidateTask checks the fields a task must carry before it is stored.
func ValidateTask(t Task) error {
	if strings.TrimSpace(t.Name) == "" {
		return Invalid("name", "must not be blank")
	}
	if strings.TrimSpace(t.ScriptContent) == "" {
		return Invalid("scriptContent", "must not be blank")
	}
	if _, err := ParseTaskType(string(t.Type)); err != nil {
		return Invalid("type", err.Error())
	}
	if t.ExecutionCount < 0 || t.SuccessCount < 0 || t.FailureCount < 0 {
		return Invalid("statistics", "counts must be non-negative")
	}
	if t.AverageExecutionTime < 0 {
		return Invalid("averageExecutionTime", "must be non-negative")
	}
	for _, p := range t.Permissions.CustomPermissions {
		if strings.TrimSpace(p) == "" {
			return Invalid("customPermissions", "entries must not be blank")
		}
	}
	if t.Schedule != nil {
		return validateSchedule(*t.Schedule)
	}
	return nil
}

func validateSchedule(s TaskSchedule) error {
	if s.ScheduledTime.IsZero() {
		return Invalid("schedule.scheduledTime", "is required")
	}
	if _, err := ParseRepeatType(string(s.RepeatType)); err != nil {
		return Invalid("schedule.repeatType", err.Error())
	}
	if s.RepeatInterval < 0 || s.DelayAfterBoot < 0 || s.MaxExecutionTime < 0 {
		return Invalid("schedule", "durations must be non-negative")
	}
	if s.RepeatType == RepeatCustom && s.RepeatInterval < 1000 {
		return Invalid("schedule.repeatInterval", "CUSTOM schedules need an interval of at least 1000 ms")
	}
	return nil
}

// ValidateExecution checks an execution record before it is stored.
func ValidateExecution(r TaskExecutionResult) error {
	if r.TaskID == "" {
		return Invalid("taskId", "must not be blank")
	}
	if r.EndTime.Before(r.StartTime) {
		return Invalid("endTime", "must not precede startTime")
	}
	if _, err := ParseTaskStatus(string(r.Status)); err != nil {
		return Invalid("status", err.Error())
	}
	return nil
}
