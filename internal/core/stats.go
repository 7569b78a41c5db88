package core

import "time"

// RunningAverage folds one more sample into an average taken over count samples.
func RunningAverage(oldAverage int64, oldCount int, sample int64) int64 {
	if oldCount <= 0 {
		return sample
	}
	return (oldAverage*int64(oldCount) + sample) / int64(oldCount+1)
}

// ApplyExecution returns the task with its statistics advanced by one finished execution.
// Only the statistic fields and UpdatedAt change.
func ApplyExecution(t Task, result TaskExecutionResult, now time.Time) Task {
	t.AverageExecutionTime = RunningAverage(t.AverageExecutionTime, t.ExecutionCount, result.ExecutionTime)
	t.ExecutionCount++
	if result.IsSuccess {
		t.SuccessCount++
	} else {
		t.FailureCount++
	}
	last := result.EndTime
	t.LastExecutionTime = &last
	r := result
	t.LastExecutionResult = &r
	t.UpdatedAt = now
	return t
}

// ResetStatistics returns the task with every statistic cleared.
func ResetStatistics(t Task, now time.Time) Task {
	t.ExecutionCount = 0
	t.SuccessCount = 0
	t.FailureCount = 0
	t.AverageExecutionTime = 0
	t.LastExecutionTime = nil
	t.LastExecutionResult = nil
	t.UpdatedAt = now
	return t
}
