package robot

import (
	"context"

	"go.uber.org/multierr"

	"github.com/team3128/motorhal/utils"
)

// MotorStatus is a snapshot of one motor's readings.
type MotorStatus struct {
	Name     string
	Model    string
	Leader   string
	Mode     string
	Command  float64
	Output   float64
	Position float64
	Velocity float64
	Current  float64
	Err      error
}

// Status reads every motor, in name order. Motors are read in parallel. A motor whose reads fail
// is still reported, with Err set.
func (r *Robot) Status(ctx context.Context) []MotorStatus {
	return utils.MapInParallel(ctx, r.MotorNames(), r.motorStatus, func(name string, err error) {
		r.logger.Errorw("reading motor status panicked", "motor", name, "error", err)
	})
}

func (r *Robot) motorStatus(ctx context.Context, name string) MotorStatus {
	m := r.motors[name]
	value, mode, _ := m.LastCommand()
	status := MotorStatus{Name: name, Model: r.models[name], Mode: mode.String(), Command: value}
	if leader, ok := r.syncer.LeaderOf(m); ok {
		status.Leader = leader.Name()
	}

	var err error
	status.Output, err = m.AppliedOutput(ctx)
	status.Err = multierr.Append(status.Err, err)
	status.Position, err = m.Position(ctx)
	status.Err = multierr.Append(status.Err, err)
	status.Velocity, err = m.Velocity(ctx)
	status.Err = multierr.Append(status.Err, err)
	status.Current, err = m.StallCurrent(ctx)
	status.Err = multierr.Append(status.Err, err)
	return status
}
