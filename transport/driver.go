/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package transport drives the six backplane protocols that can make an
// IBPI pattern show up as a physical LED state: AHCI-SGPIO, SCSI/SES-2,
// NPEM, VMD, AMD-SGPIO and AMD-IPMI. Every driver shares the same
// three-operation shape so the dispatcher never special-cases a
// protocol.
package transport

import (
	"errors"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

var (
	ErrNoControllerPath = errors.New("device has no controller path")
	ErrNoElementIndex   = errors.New("device has no resolved enclosure element index")
	ErrPatternRange     = errors.New("pattern outside the acceptable NORMAL...LOCATE_OFF range")
	ErrWriteFailed      = errors.New("transport write failed")
	ErrReadbackFailed   = errors.New("transport readback failed")
)

// Driver is the capability surface every backplane protocol implements.
// Send stages a pattern for a device; Flush commits any batched
// per-controller frame (a no-op for drivers that write synchronously).
type Driver interface {
	// Probe reports whether path is a controller this driver can drive.
	Probe(path string) bool

	Send(dev *model.BlockDevice, p ibpi.Pattern) error

	Flush(dev *model.BlockDevice) error
}

// EnclosureRegistrar is implemented by drivers that need the current
// scan's enclosure topology handed to them directly, rather than
// resolved purely from the per-device fields on Driver.Send; only SES
// implements it today.
type EnclosureRegistrar interface {
	RegisterEnclosures(encs []*model.Enclosure)
}

// inRange rejects patterns outside the NORMAL...LOCATE_OFF ordinal band
// every hardware mapping table is keyed on; UNKNOWN and
// LOCATE_AND_FAILURE fall outside it.
func inRange(p ibpi.Pattern) bool {
	return p >= ibpi.NORMAL && p <= ibpi.LOCATE_OFF
}
