/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

var ErrAlreadyRunning = errors.New("already running")

// PidFile is a singleton guard backed by an exclusive, non-blocking
// advisory lock on /var/run/<progname>.pid; a second instance's lock
// attempt fails immediately rather than blocking.
type PidFile struct {
	path string
	f    *os.File
}

// Acquire opens (creating if absent) the PID file, takes an exclusive
// non-blocking lock, and writes the current PID. A failed lock means
// another instance already owns it.
func Acquire(path string) (*PidFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, err
	}
	return &PidFile{path: path, f: f}, nil
}

// Release unlocks and removes the PID file.
func (p *PidFile) Release() error {
	unix.Flock(int(p.f.Fd()), unix.LOCK_UN)
	if err := p.f.Close(); err != nil {
		return err
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}
