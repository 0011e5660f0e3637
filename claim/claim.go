// Package claim records which devices have recently been handed out, using
// nothing but a shared directory.
//
// Each device has a marker file named by its device number. The marker's
// modification time is the time of the last claim. A device is considered
// spoken for until startupTime has passed since then, which gives the
// claimer's workload time to show up in the occupancy oracle. Markers are
// never removed; the directory is expected to live on volatile storage.
package claim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const DefaultDir = "/tmp/getgpu"

var ErrUnwritable = errors.New("claim directory is not writable")

type Marker struct {
	Device    int
	LastClaim time.Time
}

type Store struct {
	dir    string
	logger *zap.Logger
}

type O struct {
	Dir    string
	Logger *zap.Logger
}

// Open returns a Store for the directory without creating or validating it.
// It is suitable for read-only use.
func Open(o O) *Store {
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Store{
		dir:    o.Dir,
		logger: o.Logger,
	}
}

// Prepare creates the claim directory if needed and checks that we may write
// to it.
//
// N.B.: the directory is created with mode 0777, which is subject to the
// process umask. Callers sharing the directory between users should clear the
// umask first.
func Prepare(o O) (*Store, error) {
	s := Open(o)

	mkErr := os.Mkdir(s.dir, 0o777)
	if errors.Is(mkErr, fs.ErrExist) {
		mkErr = nil
	}

	if err := unix.Access(s.dir, unix.W_OK); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnwritable, s.dir, multierr.Combine(err, mkErr))
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(d int) string { return filepath.Join(s.dir, strconv.Itoa(d)) }

// Age returns the time since the device was last claimed. A device which has
// never been claimed is treated as claimed at the Unix epoch.
func (s *Store) Age(d int) (time.Duration, error) {
	mtime, err := lastClaim(s.path(d))
	if err != nil {
		return 0, err
	}
	return time.Since(mtime), nil
}

// TryClaim attempts to claim the device. It returns false if the device was
// claimed less than startupTime ago, or if another process is concurrently
// validating the same marker. Errors are only returned for unexpected file
// system failures.
func (s *Store) TryClaim(d int, startupTime time.Duration) (claimed bool, err error) {
	path := s.path(d)
	logger := s.logger.With(zap.Int("device", d))

	mtime, err := lastClaim(path)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if now.Sub(mtime) < startupTime {
		logger.Debug("device recently claimed", zap.Duration("age", now.Sub(mtime)))
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE|os.O_EXCL, 0o777)
	if err == nil {
		// Creation is exclusive, so nobody else can believe they created
		// the marker, and its mtime is already now.
		if err := f.Close(); err != nil {
			logger.Warn("cannot close new marker", zap.Error(err))
		}
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("cannot create marker %s: %w", path, err)
	}

	l := flock.New(path, flock.SetPermissions(0o777))
	locked, err := l.TryLock()
	if err != nil {
		return false, fmt.Errorf("cannot lock marker %s: %w", path, err)
	}
	if !locked {
		logger.Debug("marker locked by another process")
		return false, nil
	}
	defer func() {
		if uerr := l.Unlock(); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("cannot unlock marker %s: %w", path, uerr))
		}
	}()

	// The marker may have been refreshed between the first read and taking
	// the lock.
	if mtime, err = lastClaim(path); err != nil {
		return false, err
	}
	if now.Sub(mtime) < startupTime {
		logger.Debug("device claimed by another process")
		return false, nil
	}

	if err := touch(path); err != nil {
		return false, fmt.Errorf("cannot refresh marker %s: %w", path, err)
	}
	return true, nil
}

// Markers lists all markers in the directory, ordered by device number.
func (s *Store) Markers() ([]Marker, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read claim directory %s: %w", s.dir, err)
	}

	markers := make([]Marker, 0, len(entries))
	for _, e := range entries {
		d, err := strconv.Atoi(e.Name())
		if err != nil || d < 0 || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cannot stat marker %s: %w", e.Name(), err)
		}
		markers = append(markers, Marker{
			Device:    d,
			LastClaim: info.ModTime(),
		})
	}

	sort.Slice(markers, func(i, j int) bool { return markers[i].Device < markers[j].Device })
	return markers, nil
}

func lastClaim(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Unix(0, 0), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot stat marker %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// touch sets the marker's mtime to the current time. UTIME_NOW only requires
// write permission, whereas an explicit timestamp requires owning the file.
func touch(path string) error {
	ts := []unix.Timespec{
		{Nsec: unix.UTIME_NOW},
		{Nsec: unix.UTIME_NOW},
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, 0)
}
