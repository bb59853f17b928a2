// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile provides atomic CBOR state files for values that
// must survive a process restart: the anonymous participant identity
// and the active quick play flow marker.
//
// Files are written atomically (temporary file, fsync, rename, parent
// directory fsync) so a reader never observes a partial write, even if
// the process is killed mid-write. A process that was killed while
// hosting can read the marker it left behind on the next start and
// clean up the lobby record it abandoned.
package statefile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/quickplay/lib/codec"
)

// Write encodes value as CBOR and atomically replaces path with it. The
// file is created with mode 0600. Missing parent directories are
// created with mode 0700.
func Write(path string, value any) error {
	data, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding state file %s: %w", path, err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating state directory %s: %w", directory, err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read decodes the state file at path into value. When the file does
// not exist the returned error wraps fs.ErrNotExist.
func Read(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, value); err != nil {
		return fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a state file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Clear removes the state file. Returns nil when it does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
