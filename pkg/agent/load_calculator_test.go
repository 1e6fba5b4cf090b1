package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoadCalculator(t *testing.T) {
	calc := &DefaultLoadCalculator{}

	tests := []struct {
		name    string
		metrics LoadMetrics
		want    float32
	}{
		{
			name:    "idle worker",
			metrics: LoadMetrics{ActiveJobs: 0, MaxJobs: 4},
			want:    0,
		},
		{
			name:    "half capacity",
			metrics: LoadMetrics{ActiveJobs: 2, MaxJobs: 4},
			want:    0.5,
		},
		{
			name:    "at capacity",
			metrics: LoadMetrics{ActiveJobs: 4, MaxJobs: 4},
			want:    1,
		},
		{
			name:    "unlimited jobs uses heuristic",
			metrics: LoadMetrics{ActiveJobs: 3, MaxJobs: 0},
			want:    0.3,
		},
		{
			name:    "unlimited jobs capped at one",
			metrics: LoadMetrics{ActiveJobs: 15, MaxJobs: 0},
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Calculate(tt.metrics), 0.001)
		})
	}
}
