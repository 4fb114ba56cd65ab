package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// PathExists returns true if the path exists on disk
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// EnsureFolder creates the folder for the database if it doesn't exist already
// New folders are readable by the owner only, since the database holds emails and password hashes
// Returns an error if the path exists but isn't a folder
func EnsureFolder(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.MkdirAll(path, 0o700)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("path %s exists and is not a folder", path)
	}
	return nil
}
