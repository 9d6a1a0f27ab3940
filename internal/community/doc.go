// Package community implements the evolution simulator: a running
// coherence/diversity state fed by typed events, a balance score derived
// from distance to a fixed ideal, and a classification of how balance
// trends over a run.
//
// A Simulator owns its histories exclusively and is not safe for
// concurrent use. Independent communities get independent simulators.
//
// Usage:
//
//	sim := community.New(community.NewRand(42), community.DefaultOptions())
//	report, err := sim.Run(ctx, 21, 8)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(report.Trajectory)
package community
