/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transport

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

// VMD drives PCIe hot-plug slots behind an Intel VMD domain, writing the
// same attention nibble NPEM uses to the matching
// /sys/bus/pci/slots/<n>/attention.
type VMD struct {
	Slots []*model.PciSlot
	last  map[string]ibpi.Pattern
}

func NewVMD(slots []*model.PciSlot) *VMD {
	return &VMD{Slots: slots, last: make(map[string]ibpi.Pattern)}
}

func (v *VMD) Probe(path string) bool {
	for _, s := range v.Slots {
		if s.Address == path {
			return true
		}
	}
	return false
}

// findSlot resolves dev's PCI address to its /sys/bus/pci/slots/<n>
// entry, verifying the slot's module symlink resolves to pciehp.
func (v *VMD) findSlot(dev *model.BlockDevice) (*model.PciSlot, error) {
	for _, s := range v.Slots {
		if s.Address == dev.ControllerPath {
			if !pciehpBacked(s.SysPath) {
				return nil, errors.New("EINVAL: slot is not pciehp-backed")
			}
			return s, nil
		}
	}
	return nil, ErrNoControllerPath
}

func pciehpBacked(slotSysPath string) bool {
	link, err := os.Readlink(filepath.Join(slotSysPath, `module`))
	return err == nil && strings.Contains(link, `pciehp`)
}

func (v *VMD) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if !inRange(p) {
		return ErrPatternRange
	}
	slot, err := v.findSlot(dev)
	if err != nil {
		return err
	}
	if prev, ok := v.last[slot.Address]; ok && prev == p && p != ibpi.LOCATE_OFF {
		return nil // LOCATE_OFF always re-emits even if already off
	}
	nib, ok := npemNibble[p]
	if !ok {
		nib = npemDefaultNibble
	}
	path := filepath.Join(slot.SysPath, `attention`)
	if err := os.WriteFile(path, []byte(strconv.Itoa(int(nib))), 0200); err != nil {
		return ErrWriteFailed
	}
	slot.Attention = nib
	v.last[slot.Address] = p
	return nil
}

func (v *VMD) Flush(dev *model.BlockDevice) error { return nil }
