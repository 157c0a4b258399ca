//go:build !linux && !darwin

package storage

import "os"

// On unsupported platforms the directory is not locked.
type dirLock struct{}

func lockDir(string) (*dirLock, error) {
	return &dirLock{}, nil
}

func (l *dirLock) release() error {
	return nil
}

func syncFile(f *os.File) error {
	return f.Sync()
}
