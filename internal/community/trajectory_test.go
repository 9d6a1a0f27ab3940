package community

import "testing"

func TestClassifyTrajectory(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    Trajectory
	}{
		{"improving", []float64{0.2, 0.2, 0.2, 0.8, 0.8, 0.8}, TrajectoryImproving},
		{"declining", []float64{0.8, 0.8, 0.8, 0.2, 0.2, 0.2}, TrajectoryDeclining},
		{"stable", []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, TrajectoryStable},
		{"small rise is stable", []float64{0.5, 0.5, 0.5, 0.6, 0.6, 0.6}, TrajectoryStable},
		{"exactly one window", []float64{0.3, 0.4, 0.5}, TrajectoryStable},
		{"two samples", []float64{0.1, 0.9}, TrajectoryInsufficientData},
		{"empty", nil, TrajectoryInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTrajectory(tt.samples); got != tt.want {
				t.Errorf("ClassifyTrajectory(%v) = %q, want %q", tt.samples, got, tt.want)
			}
		})
	}
}
