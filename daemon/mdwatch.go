/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package daemon

import (
	"golang.org/x/sys/unix"
)

// MdstatWatch holds an open fd on /proc/mdstat so the event loop can
// poll it for POLLPRI, the kernel's signal that an array's exception
// condition (degraded, failed, recovering) changed since the last read
// — the same mechanism the source tracks via select's error fd-set.
type MdstatWatch struct {
	fd int
}

func OpenMdstatWatch(path string) (*MdstatWatch, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &MdstatWatch{fd: fd}, nil
}

func (m *MdstatWatch) Fd() int { return m.fd }

func (m *MdstatWatch) Close() error { return unix.Close(m.fd) }

// PollFds waits on the udev socket (POLLIN) and /proc/mdstat (POLLPRI)
// simultaneously, up to timeoutMs milliseconds (-1 blocks until one of
// them is ready). It returns which sources became ready.
func PollFds(udevFd, mdstatFd, timeoutMs int) (udevReady, mdstatReady bool, err error) {
	fds := []unix.PollFd{
		{Fd: int32(udevFd), Events: unix.POLLIN},
		{Fd: int32(mdstatFd), Events: unix.POLLPRI},
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil || n == 0 {
		return false, false, err
	}
	udevReady = fds[0].Revents&unix.POLLIN != 0
	mdstatReady = fds[1].Revents&unix.POLLPRI != 0
	return udevReady, mdstatReady, nil
}
