package core

import "time"

// SystemMetrics is a point-in-time sample of host resource usage.
type SystemMetrics struct {
	ID                 string
	Timestamp          time.Time
	CPUUsage           float32
	MemoryUsage        int64
	TotalMemory        int64
	BatteryLevel       float32
	BatteryTemperature float32
	DiskUsage          int64
	TotalDisk          int64
}

// DashboardMetrics summarizes task activity across all tasks.
type DashboardMetrics struct {
	TotalTasks           int
	ActiveTasks          int
	CompletedTasks       int
	FailedTasks          int
	AverageExecutionTime int64
	TotalExecutionTime   int64
	SuccessRate          float32
	LastUpdateTime       time.Time
}

// TaskMetrics is the per-task slice of the dashboard.
type TaskMetrics struct {
	TaskID               string
	TaskName             string
	ExecutionCount       int
	SuccessCount         int
	FailureCount         int
	AverageExecutionTime int64
	LastExecutionTime    *time.Time
	LastExecutionResult  *TaskExecutionResult
}

// MetricsForTask projects a task onto its TaskMetrics.
func MetricsForTask(t Task) TaskMetrics {
	return TaskMetrics{
		TaskID:               t.ID,
		TaskName:             t.Name,
		ExecutionCount:       t.ExecutionCount,
		SuccessCount:         t.SuccessCount,
		FailureCount:         t.FailureCount,
		AverageExecutionTime: t.AverageExecutionTime,
		LastExecutionTime:    t.LastExecutionTime,
		LastExecutionResult:  t.LastExecutionResult,
	}
}
