/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package model

import "github.com/gravwell/ledmon/ibpi"

// EnclosureSlot is one SES-2 element slot inside an Enclosure.
type EnclosureSlot struct {
	ElementIndex int    // SES element index within the status page
	SASAddress   uint64 // 0 if nothing attached
	State        ibpi.Pattern
}

// Enclosure is an SES-2 enclosure device: a /dev/sgN generic device plus
// its parsed configuration (page 0x01) and status (page 0x02) diagnostic
// pages. Enclosure owns its Slots; a Slot references a device only
// through the device's SAS address, never a pointer, keeping Enclosure,
// Slot and BlockDevice free of reference cycles.
type Enclosure struct {
	SysPath    string
	SgPath     string // /dev/sgN
	SASAddress uint64
	Slots      []EnclosureSlot

	// RawConfig and RawStatus hold raw diagnostic pages; neither the
	// inventory nor the SES transport fills them, and the SES transport
	// reads pages 0x01 and 0x02 afresh on every flush.
	RawConfig []byte
	RawStatus []byte
}

// SlotByElement returns a pointer to the slot with the given SES element
// index, or nil.
func (e *Enclosure) SlotByElement(idx int) *EnclosureSlot {
	for i := range e.Slots {
		if e.Slots[i].ElementIndex == idx {
			return &e.Slots[i]
		}
	}
	return nil
}

// SlotBySAS returns a pointer to the slot currently holding the given SAS
// address, or nil.
func (e *Enclosure) SlotBySAS(addr uint64) *EnclosureSlot {
	if addr == 0 {
		return nil
	}
	for i := range e.Slots {
		if e.Slots[i].SASAddress == addr {
			return &e.Slots[i]
		}
	}
	return nil
}
