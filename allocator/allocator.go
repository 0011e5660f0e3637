package allocator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/kevmo314/fedtorch/getgpu/metadata/gpu"
)

// MaxPoll bounds how long the occupancy view may go stale between passes.
const MaxPoll = time.Second

var ErrTimeout = errors.New("no GPU could be claimed in time")

type Claimer interface {
	// TryClaim returns true if the device is now reserved for the caller.
	// It must not block on other claimers.
	TryClaim(d int, startupTime time.Duration) (bool, error)
}

type O struct {
	Oracle  gpu.Oracle
	Claimer Claimer

	// Wait is the total time to keep searching before giving up.
	Wait time.Duration

	// StartupTime is how long a claim is honored before the claimer's
	// workload is expected to show up in the oracle.
	StartupTime time.Duration

	Logger *zap.Logger
}

type Allocator struct {
	oracle  gpu.Oracle
	claimer Claimer
	wait    time.Duration
	startup time.Duration
	logger  *zap.Logger

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	shuffle func(ds []int)
}

func New(o O) *Allocator {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Allocator{
		oracle:  o.Oracle,
		claimer: o.Claimer,
		wait:    o.Wait,
		startup: o.StartupTime,
		logger:  o.Logger,

		now:     time.Now,
		sleep:   sleep,
		shuffle: shuffle,
	}
}

// Allocate polls until a device is both idle and claimable, and returns its
// device number. It returns an error wrapping ErrTimeout if nothing could be
// claimed within the wait budget; any other error is fatal.
//
// N.B.: a wait of zero performs a single pass.
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	deadline := a.now().Add(a.wait)
	for {
		if d, ok, err := a.pass(); err != nil {
			return -1, err
		} else if ok {
			return d, nil
		}

		remaining := deadline.Sub(a.now())
		if remaining <= 0 {
			return -1, fmt.Errorf("%w: waited %v", ErrTimeout, a.wait)
		}

		a.logger.Info("waiting for GPU...")
		if err := a.sleep(ctx, min(a.wait, remaining, MaxPoll)); err != nil {
			return -1, err
		}
	}
}

// pass makes a single attempt over all currently idle devices.
func (a *Allocator) pass() (int, bool, error) {
	idle, err := gpu.Idle(a.oracle)
	if err != nil {
		return -1, false, fmt.Errorf("cannot query GPU occupancy: %w", err)
	}

	// Concurrently started processes would otherwise all contend for the
	// lowest numbered idle device first.
	a.shuffle(idle)
	a.logger.Debug("idle devices", zap.Ints("candidates", idle))

	for _, d := range idle {
		ok, err := a.claimer.TryClaim(d, a.startup)
		if err != nil {
			return -1, false, err
		}
		if ok {
			return d, true, nil
		}
	}
	return -1, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shuffle(ds []int) {
	rand.Shuffle(len(ds), func(i, j int) { ds[i], ds[j] = ds[j], ds[i] })
}
