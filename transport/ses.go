/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transport

import (
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

const (
	sesPageConfig uint8 = 0x01
	sesPageStatus uint8 = 0x02

	// sgIODirToDev / sgIODirFromDev select SG_IO's transfer direction,
	// mirroring <scsi/sg.h>.
	sgIODirToDev   = -2
	sgIODirFromDev = -3
)

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>, the fields SG_IO
// actually reads; unused fields are left zero.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

const sgIOMagic = 'S'

// sesElementCode is the SES-2 control-element code written into each
// slot's descriptor for the requested IBPI pattern.
var sesElementCode = map[ibpi.Pattern]ibpi.SESCode{
	ibpi.NORMAL:         ibpi.SESOk,
	ibpi.ONESHOT_NORMAL: ibpi.SESOk,
	ibpi.DEGRADED:       ibpi.SESIca,
	ibpi.HOTSPARE:       ibpi.SESHotspare,
	ibpi.REBUILD:        ibpi.SESRebuild,
	ibpi.FAILED_ARRAY:   ibpi.SESIfa,
	ibpi.PFA:            ibpi.SESPrdfail,
	ibpi.FAILED_DRIVE:   ibpi.SESFault,
	ibpi.LOCATE:         ibpi.SESIdent,
	ibpi.LOCATE_OFF:     ibpi.SESOk,
}

// sesEnclosureState batches the configuration/status pages for one
// enclosure across a scan, so multiple Send calls coalesce into a
// single write-then-readback on Flush.
type sesEnclosureState struct {
	enc     *model.Enclosure
	pending map[int]ibpi.Pattern // element index -> requested pattern
}

// SES drives SCSI/SES-2 enclosures over SG_IO, batching per-enclosure
// writes and re-reading status after every flush because the hardware
// may silently refuse or normalize requested bits.
type SES struct {
	mu     sync.Mutex
	states map[string]*sesEnclosureState // keyed by enclosure SgPath
	ioctl  func(fd int, page uint8, write bool, buf []byte) error
}

// NewSES builds an SES driver using the real SG_IO ioctl.
func NewSES() *SES {
	s := &SES{states: make(map[string]*sesEnclosureState)}
	s.ioctl = s.sgioDiagnosticPage
	return s
}

// Probe reports whether path is a /dev/sgN generic SCSI device rather
// than the /sys/class/enclosure class directory that names it.
func (s *SES) Probe(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Send stages a pattern change for one slot, identified by the device's
// enclosure element index, resolved by sysfsinv against the enclosure's
// slot list before the device ever reaches a transport.
func (s *SES) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if !inRange(p) {
		return ErrPatternRange
	}
	if dev.ControllerPath == `` {
		return ErrNoControllerPath
	}
	if dev.ElementIndex < 0 {
		return ErrNoElementIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[dev.ControllerPath]
	if !ok {
		st = &sesEnclosureState{pending: make(map[int]ibpi.Pattern)}
		s.states[dev.ControllerPath] = st
	}
	st.pending[dev.ElementIndex] = p
	return nil
}

// RegisterEnclosures hands this scan's enclosure topology to the driver
// so Flush can decode a post-write status page back into every slot's
// in-model IBPI state, not just the slots this tick happened to touch.
func (s *SES) RegisterEnclosures(encs []*model.Enclosure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, enc := range encs {
		st, ok := s.states[enc.SgPath]
		if !ok {
			st = &sesEnclosureState{pending: make(map[int]ibpi.Pattern)}
			s.states[enc.SgPath] = st
		}
		st.enc = enc
	}
}

// Flush writes the accumulated per-enclosure page 0x02, then re-reads it
// and decodes the readback into every registered slot's State; the
// readback is not compared against the requested codes.
func (s *SES) Flush(dev *model.BlockDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[dev.ControllerPath]
	if !ok || len(st.pending) == 0 {
		return nil
	}

	fd, err := unix.Open(dev.ControllerPath, unix.O_RDWR, 0)
	if err != nil {
		return ErrWriteFailed
	}
	defer unix.Close(fd)

	cfg := make([]byte, 1024)
	if err := s.ioctl(fd, sesPageConfig, false, cfg); err != nil {
		return ErrReadbackFailed
	}
	status := make([]byte, 1024)
	if err := s.ioctl(fd, sesPageStatus, false, status); err != nil {
		return ErrReadbackFailed
	}

	for idx, pattern := range st.pending {
		setSlotControlBits(status, idx, sesElementCode[pattern])
	}

	if err := s.ioctl(fd, sesPageStatus, true, status); err != nil {
		return ErrWriteFailed
	}

	readback := make([]byte, 1024)
	if err := s.ioctl(fd, sesPageStatus, false, readback); err != nil {
		return ErrReadbackFailed // in-model state intentionally left unchanged
	}

	if st.enc != nil {
		for i := range st.enc.Slots {
			st.enc.Slots[i].State = decodeSlotState(readback, st.enc.Slots[i].ElementIndex)
		}
	}

	st.pending = make(map[int]ibpi.Pattern)
	return nil
}

// decodeSlotState reads back the code the hardware actually accepted
// for a slot's control byte and maps it to the IBPI pattern it
// represents, the inverse of setSlotControlBits.
func decodeSlotState(page []byte, elementIdx int) ibpi.Pattern {
	off := elementIdx * 4
	if off+4 > len(page) {
		return ibpi.NORMAL
	}
	return ibpi.SESCode(page[off] & 0x0f).AsPattern()
}

// setSlotControlBits clears the previous select bits for a target
// element and sets the requested code's bits, per the SES-2
// control-element byte layout (byte 0 high nibble select, low nibble
// code).
func setSlotControlBits(page []byte, elementIdx int, code ibpi.SESCode) {
	off := elementIdx * 4
	if off+4 > len(page) {
		return
	}
	page[off] = 0x80 | byte(code&0x0f) // select bit + code
}

// sgioDiagnosticPage issues SG_IO with the RECEIVE/SEND DIAGNOSTIC CDB
// for the given SES page.
func (s *SES) sgioDiagnosticPage(fd int, page uint8, write bool, buf []byte) error {
	var cdb [10]byte
	if write {
		cdb[0] = 0x5e // SEND DIAGNOSTIC
	} else {
		cdb[0] = 0x5d // RECEIVE DIAGNOSTIC RESULTS
		cdb[1] = 0x01 // PCV
	}
	cdb[2] = page
	cdb[7] = byte(len(buf) >> 8)
	cdb[8] = byte(len(buf))

	hdr := sgIOHdr{
		interfaceID: int32('S'),
		cmdLen:      uint8(len(cdb)),
		mxSBLen:     32,
		dxferLen:    uint32(len(buf)),
		dxferp:      uintptr(unsafe.Pointer(&buf[0])),
		cmdp:        uintptr(unsafe.Pointer(&cdb[0])),
		timeout:     5000,
	}
	if write {
		hdr.dxferDirection = sgIODirToDev
	} else {
		hdr.dxferDirection = sgIODirFromDev
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(0x2285), uintptr(unsafe.Pointer(&hdr)))
	if errno != 0 {
		return errno
	}
	return nil
}
