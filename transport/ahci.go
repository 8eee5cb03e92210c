/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

// interCommandGap is the minimum delay between em_message writes to the
// same AHCI controller.
const interCommandGap = 1500 * time.Microsecond

// ahciPatternWord is the fixed IBPI -> 32-bit em_message table; any
// pattern not listed clears the message.
var ahciPatternWord = map[ibpi.Pattern]uint32{
	ibpi.REBUILD:      0x00480000,
	ibpi.FAILED_DRIVE: 0x00400000,
	ibpi.LOCATE:       0x00080000,
}

// AHCI drives Intel AHCI-SGPIO controllers by writing a 32-bit value to
// <sata_phy>/em_message.
type AHCI struct {
	last  map[string]ibpi.Pattern
	sleep func(time.Duration)
}

// NewAHCI builds an AHCI driver ready to track per-device last-emitted
// patterns (writes are skipped when the pattern is unchanged, except
// for LOCATE_OFF, which is always written).
func NewAHCI() *AHCI {
	return &AHCI{last: make(map[string]ibpi.Pattern), sleep: time.Sleep}
}

func (a *AHCI) Probe(path string) bool {
	_, err := os.Stat(filepath.Join(path, `em_message`))
	return err == nil
}

func (a *AHCI) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if dev.ControllerPath == `` {
		return ErrNoControllerPath
	}
	if !inRange(p) {
		return ErrPatternRange
	}
	if prev, ok := a.last[dev.ControllerPath]; ok && prev == p && p != ibpi.LOCATE_OFF {
		return nil // unchanged: skip the write entirely; LOCATE_OFF always re-emits
	}

	word := ahciPatternWord[p] // zero value for every pattern not in the table
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)

	a.sleep(interCommandGap)
	path := filepath.Join(dev.ControllerPath, `em_message`)
	if err := os.WriteFile(path, buf[:], 0200); err != nil {
		return ErrWriteFailed
	}
	a.last[dev.ControllerPath] = p
	return nil
}

// Flush is a no-op: AHCI-SGPIO writes are synchronous, one em_message
// per Send.
func (a *AHCI) Flush(dev *model.BlockDevice) error { return nil }

// isAHCISataPhy reports whether path looks like a SATA PHY directory
// name (its base name starts with "ata" or "link"), the level
// em_message lives at.
func isAHCISataPhy(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, `ata`) || strings.HasPrefix(base, `link`)
}
