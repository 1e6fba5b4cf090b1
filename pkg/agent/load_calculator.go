package agent

import "time"

// LoadCalculator provides custom load calculation for workers.
//
// Implementations determine how "loaded" a worker is. The load value is
// reported to the server and used for job assignment decisions.
//
// Load values must be normalized between 0.0 (no load) and 1.0 (full load).
type LoadCalculator interface {
	// Calculate returns a load value between 0.0 and 1.0.
	Calculate(metrics LoadMetrics) float32
}

// LoadMetrics contains metrics for load calculation.
//
// Not all fields need to be populated. Calculators should handle
// missing data gracefully.
type LoadMetrics struct {
	// ActiveJobs is the current number of jobs being processed
	ActiveJobs int

	// MaxJobs is the maximum number of concurrent jobs allowed (0 = unlimited)
	MaxJobs int

	// JobDuration maps job IDs to their processing duration.
	// This helps identify long-running jobs that might indicate higher load.
	JobDuration map[string]time.Duration
}

// DefaultLoadCalculator implements the default load calculation strategy.
//
// This calculator uses a simple approach based solely on job count:
//   - With MaxJobs set: load = ActiveJobs / MaxJobs
//   - Without MaxJobs: load = ActiveJobs * 0.1 (capped at 1.0)
//
// This is suitable for workers where job count is the primary constraint.
type DefaultLoadCalculator struct{}

// Calculate implements LoadCalculator using job count ratio.
func (d *DefaultLoadCalculator) Calculate(metrics LoadMetrics) float32 {
	if metrics.MaxJobs > 0 {
		return float32(metrics.ActiveJobs) / float32(metrics.MaxJobs)
	}
	// For unlimited jobs, use a heuristic
	load := float32(metrics.ActiveJobs) * 0.1
	if load > 1.0 {
		load = 1.0
	}
	return load
}
