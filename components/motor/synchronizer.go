package motor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/team3128/motorhal/logging"
)

// DefaultSyncPeriod is how often followers are brought in line with their leaders.
const DefaultSyncPeriod = 100 * time.Millisecond

// SyncTaskName is the name of the periodic task registered by Start.
const SyncTaskName = "follower-sync"

// A PeriodicRegistrar runs registered functions on a fixed period.
type PeriodicRegistrar interface {
	AddPeriodic(name string, period time.Duration, fn func(ctx context.Context)) error
}

// A Synchronizer holds the leader/follower relationships between motors and, on every Tick,
// copies each leader's applied output to its followers. It holds references to motors but does
// not own them.
type Synchronizer struct {
	logger logging.Logger

	mu        sync.RWMutex
	leaders   []*Motor
	followers map[*Motor][]*Motor
	leaderOf  map[*Motor]*Motor
}

// NewSynchronizer returns an empty Synchronizer.
func NewSynchronizer(logger logging.Logger) *Synchronizer {
	return &Synchronizer{
		logger:    logger.Sublogger("sync"),
		followers: map[*Motor][]*Motor{},
		leaderOf:  map[*Motor]*Motor{},
	}
}

// Register makes follower mirror leader. Registering the same pair twice is a no-op. A follower
// mirrors exactly one leader, and a relationship that would loop back to the follower through
// the leader's own leaders is rejected.
func (s *Synchronizer) Register(leader, follower *Motor) error {
	if leader == nil || follower == nil {
		return errors.New("leader and follower must both be set")
	}
	if leader == follower {
		return errors.Wrapf(ErrSelfFollow, "motor %q", leader.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.leaderOf[follower]; ok {
		if current == leader {
			return nil
		}
		return errors.Wrapf(ErrAlreadyFollowing, "motor %q follows %q, cannot follow %q",
			follower.Name(), current.Name(), leader.Name())
	}
	for up := leader; up != nil; up = s.leaderOf[up] {
		if up == follower {
			return errors.Wrapf(ErrFollowerCycle, "motor %q following %q", follower.Name(), leader.Name())
		}
	}

	if _, known := s.followers[leader]; !known {
		s.leaders = append(s.leaders, leader)
	}
	s.followers[leader] = append(s.followers[leader], follower)
	s.leaderOf[follower] = leader
	s.logger.Debugw("registered follower", "leader", leader.Name(), "follower", follower.Name())
	return nil
}

// Leaders returns every motor with at least one follower, in registration order.
func (s *Synchronizer) Leaders() []*Motor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Motor(nil), s.leaders...)
}

// Followers returns the followers of leader in registration order.
func (s *Synchronizer) Followers(leader *Motor) []*Motor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Motor(nil), s.followers[leader]...)
}

// LeaderOf returns the motor follower mirrors, if any.
func (s *Synchronizer) LeaderOf(follower *Motor) (*Motor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leader, ok := s.leaderOf[follower]
	return leader, ok
}

type syncGroup struct {
	leader    *Motor
	followers []*Motor
}

func (s *Synchronizer) snapshot() []syncGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.leaders, func(leader *Motor, _ int) syncGroup {
		return syncGroup{leader: leader, followers: append([]*Motor(nil), s.followers[leader]...)}
	})
}

// Tick runs one sweep: each leader's applied output is read live and sent to its followers as a
// percent output command. Followers already at that output see no bus traffic. A failure on one
// leader or follower is logged and does not stop the sweep; all failures are returned together.
func (s *Synchronizer) Tick(ctx context.Context) error {
	var errs error
	for _, group := range s.snapshot() {
		output, err := group.leader.AppliedOutput(ctx)
		if err != nil {
			s.logger.Warnw("cannot read leader output", "leader", group.leader.Name(), "error", err)
			errs = multierr.Append(errs, errors.Wrapf(err, "leader %q", group.leader.Name()))
			continue
		}
		for _, follower := range group.followers {
			if err := follower.SetOutput(ctx, output); err != nil {
				s.logger.Warnw("cannot mirror leader output",
					"leader", group.leader.Name(), "follower", follower.Name(), "output", output, "error", err)
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Start registers the sweep with the scheduler at DefaultSyncPeriod.
func (s *Synchronizer) Start(scheduler PeriodicRegistrar) error {
	return s.StartWithPeriod(scheduler, DefaultSyncPeriod)
}

// StartWithPeriod registers the sweep with the scheduler at the given period.
func (s *Synchronizer) StartWithPeriod(scheduler PeriodicRegistrar, period time.Duration) error {
	return scheduler.AddPeriodic(SyncTaskName, period, func(ctx context.Context) {
		// failures are already logged per motor
		_ = s.Tick(ctx)
	})
}
