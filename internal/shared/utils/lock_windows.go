//go:build windows

package utils

import "os"

// FileLock on Windows degrades to a lock-file presence marker. The tool
// targets macOS; this keeps cross-compilation working.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) Lock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	fl.file = f
	return nil
}

func (fl *FileLock) TryLock() (bool, error) {
	if err := fl.Lock(); err != nil {
		return false, err
	}
	return true, nil
}

func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
