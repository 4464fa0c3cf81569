// Package rentemp provides atomic file replacement: content is written to a
// temporary file in the target directory and renamed over the destination
// only on success, so a partial file never appears at the canonical path.
package rentemp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile atomically replaces the contents of path with data.
// The parent directory must exist. On any error the destination is left
// untouched and the temporary file is removed.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := Create(path, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}

// File is an in-progress atomic replacement. Write content, then call
// Commit to publish it or Abort to discard it. Exactly one of the two
// must be called.
type File struct {
	tmp  *os.File
	dest string
	perm os.FileMode
	done bool
}

var _ io.Writer = (*File)(nil)

// Create starts an atomic replacement of path. The temporary file is placed
// in the same directory so the final rename stays within one filesystem.
func Create(path string, perm os.FileMode) (*File, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("rentemp: create temp in %s: %w", dir, err)
	}
	return &File{tmp: tmp, dest: path, perm: perm}, nil
}

// Write appends to the pending content.
func (f *File) Write(p []byte) (int, error) {
	return f.tmp.Write(p)
}

// Commit flushes the temporary file and renames it over the destination.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	name := f.tmp.Name()
	if err := f.tmp.Sync(); err != nil {
		f.tmp.Close()
		os.Remove(name)
		return fmt.Errorf("rentemp: sync %s: %w", name, err)
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("rentemp: close %s: %w", name, err)
	}
	if err := os.Chmod(name, f.perm); err != nil {
		os.Remove(name)
		return fmt.Errorf("rentemp: chmod %s: %w", name, err)
	}
	if err := os.Rename(name, f.dest); err != nil {
		os.Remove(name)
		return fmt.Errorf("rentemp: rename to %s: %w", f.dest, err)
	}
	return nil
}

// Abort discards the pending content, leaving the destination untouched.
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	name := f.tmp.Name()
	f.tmp.Close()
	os.Remove(name)
}
