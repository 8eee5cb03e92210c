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
	"path/filepath"
	"strconv"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

// npemNibble maps an IBPI pattern to the 4-bit NPEM control-register
// value; anything not listed writes "Attention Off, Power Off".
var npemNibble = map[ibpi.Pattern]byte{
	ibpi.LOCATE:       0b0111, // Attention Off, Power On
	ibpi.FAILED_DRIVE: 0b1101, // Attention On, Power Off
	ibpi.REBUILD:      0b0101, // Attention On, Power On
}

const npemDefaultNibble byte = 0b1111

// NPEM drives the PCIe Native PCIe Enclosure Management capability
// register exposed at <controller>/npem.
type NPEM struct {
	last map[string]ibpi.Pattern
}

func NewNPEM() *NPEM { return &NPEM{last: make(map[string]ibpi.Pattern)} }

func (n *NPEM) Probe(path string) bool {
	_, err := os.Stat(filepath.Join(path, `npem`))
	return err == nil
}

func (n *NPEM) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if dev.ControllerPath == `` {
		return ErrNoControllerPath
	}
	if !inRange(p) {
		return ErrPatternRange
	}
	if prev, ok := n.last[dev.ControllerPath]; ok && prev == p && p != ibpi.LOCATE_OFF {
		return nil // LOCATE_OFF always re-emits even if already off
	}
	nib, ok := npemNibble[p]
	if !ok {
		nib = npemDefaultNibble
	}
	path := filepath.Join(dev.ControllerPath, `npem`)
	if err := os.WriteFile(path, []byte(strconv.Itoa(int(nib))), 0200); err != nil {
		return ErrWriteFailed
	}
	n.last[dev.ControllerPath] = p
	return nil
}

func (n *NPEM) Flush(dev *model.BlockDevice) error { return nil }
