package motor_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/team3128/motorhal/components/motor"
	"github.com/team3128/motorhal/components/motor/fake"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/testutils/inject"
)

func newFakeMotor(t *testing.T, syncer *motor.Synchronizer, name string) (*motor.Motor, *fake.Backend) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	backend := fake.NewBackend(name, nil, logger)
	return motor.NewMotor(name, backend, syncer, logger), backend
}

func TestFollowerMirrorsLeader(t *testing.T) {
	ctx := context.Background()
	syncer := motor.NewSynchronizer(logging.NewTestLogger(t))
	left, _ := newFakeMotor(t, syncer, "left")
	right, rightBackend := newFakeMotor(t, syncer, "right")
	rear, rearBackend := newFakeMotor(t, syncer, "rear")

	test.That(t, right.Follow(left), test.ShouldBeNil)
	test.That(t, rear.Follow(left), test.ShouldBeNil)
	test.That(t, syncer.Leaders(), test.ShouldResemble, []*motor.Motor{left})
	// followers keep registration order
	test.That(t, syncer.Followers(left), test.ShouldResemble, []*motor.Motor{right, rear})
	for _, follower := range []*motor.Motor{right, rear} {
		leader, ok := syncer.LeaderOf(follower)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, leader, test.ShouldEqual, left)
	}

	test.That(t, left.SetOutput(ctx, 0.5), test.ShouldBeNil)
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	for _, follower := range []*motor.Motor{right, rear} {
		output, err := follower.AppliedOutput(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, output, test.ShouldEqual, 0.5)
	}
	test.That(t, rightBackend.Writes(), test.ShouldEqual, 1)
	test.That(t, rearBackend.Writes(), test.ShouldEqual, 1)

	// unchanged leader output causes no follower traffic
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	test.That(t, rightBackend.Writes(), test.ShouldEqual, 1)
	test.That(t, rearBackend.Writes(), test.ShouldEqual, 1)

	// a velocity command on the leader is mirrored as its applied output
	test.That(t, left.Command(ctx, 25, motor.Velocity), test.ShouldBeNil)
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	for _, follower := range []*motor.Motor{right, rear} {
		output, err := follower.AppliedOutput(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, output, test.ShouldEqual, 0.25)
	}
	test.That(t, rightBackend.Writes(), test.ShouldEqual, 2)
	test.That(t, rearBackend.Writes(), test.ShouldEqual, 2)
}

func TestFollowerChain(t *testing.T) {
	ctx := context.Background()
	syncer := motor.NewSynchronizer(logging.NewTestLogger(t))
	a, _ := newFakeMotor(t, syncer, "a")
	b, _ := newFakeMotor(t, syncer, "b")
	c, _ := newFakeMotor(t, syncer, "c")

	test.That(t, b.Follow(a), test.ShouldBeNil)
	test.That(t, c.Follow(b), test.ShouldBeNil)
	test.That(t, a.SetOutput(ctx, -0.75), test.ShouldBeNil)

	// a chain settles within one sweep per link
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	test.That(t, syncer.Tick(ctx), test.ShouldBeNil)
	output, err := c.AppliedOutput(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, output, test.ShouldEqual, -0.75)
}

func TestRegisterRejections(t *testing.T) {
	syncer := motor.NewSynchronizer(logging.NewTestLogger(t))
	a, _ := newFakeMotor(t, syncer, "a")
	b, _ := newFakeMotor(t, syncer, "b")
	c, _ := newFakeMotor(t, syncer, "c")

	err := a.Follow(a)
	test.That(t, errors.Is(err, motor.ErrSelfFollow), test.ShouldBeTrue)

	test.That(t, b.Follow(a), test.ShouldBeNil)
	// same pair again is a no-op
	test.That(t, b.Follow(a), test.ShouldBeNil)
	test.That(t, syncer.Followers(a), test.ShouldHaveLength, 1)

	err = b.Follow(c)
	test.That(t, errors.Is(err, motor.ErrAlreadyFollowing), test.ShouldBeTrue)

	test.That(t, c.Follow(b), test.ShouldBeNil)
	err = a.Follow(c)
	test.That(t, errors.Is(err, motor.ErrFollowerCycle), test.ShouldBeTrue)

	test.That(t, syncer.Register(nil, a), test.ShouldNotBeNil)
	test.That(t, syncer.Leaders(), test.ShouldResemble, []*motor.Motor{a, b})
}

func TestTickIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	syncer := motor.NewSynchronizer(logger)

	brokenLeaderBackend := inject.NewBackend(fake.NewBackend("broken", nil, logger))
	brokenLeaderBackend.AppliedOutputFunc = func(ctx context.Context) (float64, error) {
		return 0, errors.New("no status frame")
	}
	brokenLeader := motor.NewMotor("broken", brokenLeaderBackend, syncer, logger)
	goodLeader, _ := newFakeMotor(t, syncer, "good")

	failingFollowerBackend := inject.NewBackend(fake.NewBackend("failing", nil, logger))
	failingFollowerBackend.SetPercentOutputFunc = func(ctx context.Context, speed float64) error {
		return errors.New("bus off")
	}
	failingFollower := motor.NewMotor("failing", failingFollowerBackend, syncer, logger)
	orphan, _ := newFakeMotor(t, syncer, "orphan")
	healthy, _ := newFakeMotor(t, syncer, "healthy")

	test.That(t, orphan.Follow(brokenLeader), test.ShouldBeNil)
	test.That(t, failingFollower.Follow(goodLeader), test.ShouldBeNil)
	test.That(t, healthy.Follow(goodLeader), test.ShouldBeNil)

	test.That(t, goodLeader.SetOutput(ctx, 0.4), test.ShouldBeNil)
	err := syncer.Tick(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no status frame")
	test.That(t, err.Error(), test.ShouldContainSubstring, "bus off")

	output, err := healthy.AppliedOutput(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, output, test.ShouldEqual, 0.4)
	test.That(t, logs.FilterMessage("cannot read leader output").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("cannot mirror leader output").Len(), test.ShouldEqual, 1)
}

type recordingRegistrar struct {
	name   string
	period time.Duration
	fn     func(ctx context.Context)
}

func (r *recordingRegistrar) AddPeriodic(name string, period time.Duration, fn func(ctx context.Context)) error {
	r.name, r.period, r.fn = name, period, fn
	return nil
}

func TestSynchronizerStart(t *testing.T) {
	ctx := context.Background()
	syncer := motor.NewSynchronizer(logging.NewTestLogger(t))
	left, _ := newFakeMotor(t, syncer, "left")
	right, _ := newFakeMotor(t, syncer, "right")
	test.That(t, right.Follow(left), test.ShouldBeNil)

	var registrar recordingRegistrar
	test.That(t, syncer.Start(&registrar), test.ShouldBeNil)
	test.That(t, registrar.name, test.ShouldEqual, motor.SyncTaskName)
	test.That(t, registrar.period, test.ShouldEqual, motor.DefaultSyncPeriod)

	test.That(t, left.SetOutput(ctx, 1), test.ShouldBeNil)
	registrar.fn(ctx)
	output, err := right.AppliedOutput(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, output, test.ShouldEqual, 1.0)
}
