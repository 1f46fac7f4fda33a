package builder

import (
	"context"
	"fmt"
	"os"
	"time"
)

const lockPollInterval = 50 * time.Millisecond

// fileLock excludes other processes from replacing the live snapshot.
type fileLock struct {
	path string
	file *os.File
}

func (l *fileLock) acquire(ctx context.Context) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open build lock %s: %w", l.path, err)
	}
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if ok {
			l.file = f
			return nil
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return fmt.Errorf("waiting for build lock %s: %w", l.path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	err := unlock(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
