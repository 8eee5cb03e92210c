/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package daemon

import (
	"bytes"
	"strings"

	"golang.org/x/sys/unix"
)

// UdevEvent is one kobject uevent of interest: an "add" or "remove" on
// the block/disk subsystem.
type UdevEvent struct {
	Action  string // "add" or "remove"
	SysPath string
}

// UdevMonitor listens on a NETLINK_KOBJECT_UEVENT socket, the same
// multicast group the real udevd broadcasts kernel uevents on.
type UdevMonitor struct {
	fd int
}

// OpenUdevMonitor binds a NETLINK_KOBJECT_UEVENT socket to the kernel
// multicast group (group 1 is the single group the kernel uevent source
// publishes on).
func OpenUdevMonitor() (*UdevMonitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &UdevMonitor{fd: fd}, nil
}

// Fd exposes the underlying socket for the event loop's select/poll set.
func (u *UdevMonitor) Fd() int { return u.fd }

// Close releases the netlink socket.
func (u *UdevMonitor) Close() error { return unix.Close(u.fd) }

// Read parses one pending kobject uevent datagram. Kernel uevents are a
// sequence of NUL-terminated "KEY=VALUE" strings; only ACTION and
// DEVPATH (when SUBSYSTEM=block) are relevant here.
func (u *UdevMonitor) Read() (UdevEvent, error) {
	buf := make([]byte, 8192)
	n, err := unix.Read(u.fd, buf)
	if err != nil {
		return UdevEvent{}, err
	}
	return parseUevent(buf[:n]), nil
}

func parseUevent(buf []byte) UdevEvent {
	var ev UdevEvent
	subsystem := ``
	for _, line := range bytes.Split(buf, []byte{0}) {
		s := string(line)
		switch {
		case strings.HasPrefix(s, `ACTION=`):
			ev.Action = strings.TrimPrefix(s, `ACTION=`)
		case strings.HasPrefix(s, `DEVPATH=`):
			ev.SysPath = `/sys` + strings.TrimPrefix(s, `DEVPATH=`)
		case strings.HasPrefix(s, `SUBSYSTEM=`):
			subsystem = strings.TrimPrefix(s, `SUBSYSTEM=`)
		}
	}
	if subsystem != `block` {
		return UdevEvent{}
	}
	return ev
}

// Relevant reports whether ev is a populated block-subsystem add/remove,
// as opposed to a zero-value result from an unrelated subsystem.
func (ev UdevEvent) Relevant() bool {
	return ev.SysPath != `` && (ev.Action == `add` || ev.Action == `remove`)
}
