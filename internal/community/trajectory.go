package community

import "github.com/nvandessel/evosim/internal/constants"

// Trajectory is the qualitative trend of balance over a run.
type Trajectory string

const (
	TrajectoryImproving        Trajectory = "improving"
	TrajectoryDeclining        Trajectory = "declining"
	TrajectoryStable           Trajectory = "stable"
	TrajectoryInsufficientData Trajectory = "insufficient_data"
)

// ClassifyTrajectory compares the mean of the first window of balance
// samples with the mean of the last window. Fewer samples than one window
// yield TrajectoryInsufficientData.
func ClassifyTrajectory(balance []float64) Trajectory {
	w := constants.TrajectoryWindow
	if len(balance) < w {
		return TrajectoryInsufficientData
	}

	delta := mean(balance[len(balance)-w:]) - mean(balance[:w])
	switch {
	case delta > constants.TrajectoryDelta:
		return TrajectoryImproving
	case delta < -constants.TrajectoryDelta:
		return TrajectoryDeclining
	default:
		return TrajectoryStable
	}
}
