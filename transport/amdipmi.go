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

	"github.com/k-sone/ipmigo"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

// MG9098 backplane controller registers.
const (
	regChipID       = 0x63
	regSMBusControl = 0x3c
	regPFA          = 0x41
	regLocate       = 0x42
	regFailedDrive  = 0x44
	regFailedArray  = 0x45
	regRebuild      = 0x46
	regHotspare     = 0x47

	expectedChipID = 98
)

var ErrNotMG9098 = errors.New("backplane controller is not an MG9098")

// nvmePlatformOffset is the backplane's NVMe port-to-bay adjustment: the
// NVMe fabric enumerates its ports starting two past the SGPIO/SATA
// bank, so the physical bay is always the port number less this offset.
const nvmePlatformOffset = 2

// driveBayFromNVMePort maps an NVMe controller port to its backplane
// drive bay, distinct from driveBayFromAtaPort's SATA/SGPIO formula.
func driveBayFromNVMePort(port int) int {
	return port - nvmePlatformOffset
}

// driveBay resolves dev's backplane bay number. NVMe drives have no
// SCSI host ancestor (HostIdx == -1) and use the platform's NVMe port
// mapping; SATA/SAS drives reuse the SGPIO 8-port formula.
func driveBay(dev *model.BlockDevice) int {
	if dev.HostIdx < 0 && dev.NVMePort >= 0 {
		return driveBayFromNVMePort(dev.NVMePort)
	}
	return driveBayFromAtaPort(dev.HostIdx)
}

// platformAddr resolves the IPMI channel and slave address for a drive
// bay on the two supported AMD platforms.
func platformAddr(platform string, driveBay int) (channel, addr uint8, ok bool) {
	switch platform {
	case `Ethanol-X`:
		return 0x0d, 0xc0, true
	case `Daytona-X`:
		switch {
		case driveBay >= 1 && driveBay <= 8:
			return 0x17, 0xc0, true
		case driveBay >= 9 && driveBay <= 16:
			return 0x17, 0xc2, true
		default:
			return 0x17, 0xc4, true
		}
	}
	return 0, 0, false
}

// patternRegister maps a pattern to the single MG9098 register it sets;
// NORMAL/ONESHOT_NORMAL and LOCATE_OFF are handled specially by Send, and
// DEGRADED has no register, so Send rejects it with ErrPatternRange.
var patternRegister = map[ibpi.Pattern]uint8{
	ibpi.PFA:          regPFA,
	ibpi.LOCATE:       regLocate,
	ibpi.FAILED_DRIVE: regFailedDrive,
	ibpi.FAILED_ARRAY: regFailedArray,
	ibpi.REBUILD:      regRebuild,
	ibpi.HOTSPARE:     regHotspare,
}

var allStateRegisters = []uint8{regPFA, regLocate, regFailedDrive, regFailedArray, regRebuild}

// masterWriteReadCommand issues the IPMI "Master Write-Read" command
// (NetFn=0x06, CMD=0x52) to talk to a device behind the BMC's private
// I2C/SMBus segment, the way a MG9098 backplane controller is reached.
type masterWriteReadCommand struct {
	Channel   uint8
	SlaveAddr uint8
	ReadCount uint8
	WriteData []byte

	Data []byte // populated after Execute
}

func (c *masterWriteReadCommand) Name() string { return `Master Write-Read` }
func (c *masterWriteReadCommand) Code() uint8   { return 0x52 }
func (c *masterWriteReadCommand) NetFnRsLUN() ipmigo.NetFnRsLUN {
	return ipmigo.NetworkFunctionApp << 2
}

func (c *masterWriteReadCommand) Marshal() ([]byte, error) {
	buf := make([]byte, 3+len(c.WriteData))
	buf[0] = c.Channel
	buf[1] = c.SlaveAddr
	buf[2] = c.ReadCount
	copy(buf[3:], c.WriteData)
	return buf, nil
}

func (c *masterWriteReadCommand) Unmarshal(buf []byte) ([]byte, error) {
	c.Data = append([]byte(nil), buf...)
	return buf, nil
}

// AMDIPMI drives an MG9098 backplane controller over IPMI Master
// Write-Read, as used on the Ethanol-X and Daytona-X AMD reference
// platforms.
type AMDIPMI struct {
	client   *ipmigo.Client
	platform string
}

// NewAMDIPMI uses an already-open BMC client to confirm an MG9098
// backplane controller answers chip-id register 0x63 with the decimal
// value 98.
func NewAMDIPMI(client *ipmigo.Client, platform string) (*AMDIPMI, error) {
	a := &AMDIPMI{client: client, platform: platform}
	channel, addr, ok := platformAddr(platform, 1)
	if !ok {
		return nil, errors.New("unrecognized AMD-IPMI platform")
	}
	b, err := a.readRegister(channel, addr, regChipID)
	if err != nil {
		return nil, err
	}
	if b != expectedChipID {
		return nil, ErrNotMG9098
	}
	return a, nil
}

func (a *AMDIPMI) readRegister(channel, addr, reg uint8) (uint8, error) {
	cmd := &masterWriteReadCommand{Channel: channel, SlaveAddr: addr, ReadCount: 1, WriteData: []byte{reg}}
	if err := a.client.Execute(cmd); err != nil {
		return 0, err
	}
	if len(cmd.Data) == 0 {
		return 0, ErrReadbackFailed
	}
	return cmd.Data[0], nil
}

func (a *AMDIPMI) writeRegister(channel, addr, reg, val uint8) error {
	cmd := &masterWriteReadCommand{Channel: channel, SlaveAddr: addr, ReadCount: 0, WriteData: []byte{reg, val}}
	return a.client.Execute(cmd)
}

func (a *AMDIPMI) setBit(channel, addr, reg uint8, bay int, set bool) error {
	cur, err := a.readRegister(channel, addr, reg)
	if err != nil {
		return ErrReadbackFailed
	}
	bit := uint8(1) << uint(bay-1)
	if set {
		cur |= bit
	} else {
		cur &^= bit
	}
	if err := a.writeRegister(channel, addr, reg, cur); err != nil {
		return ErrWriteFailed
	}
	return nil
}

func (a *AMDIPMI) Probe(path string) bool {
	return path == a.platform
}

func (a *AMDIPMI) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if !inRange(p) {
		return ErrPatternRange
	}
	bay := driveBay(dev)
	channel, addr, ok := platformAddr(a.platform, bay)
	if !ok {
		return ErrNoControllerPath
	}

	if p == ibpi.NORMAL || p == ibpi.ONESHOT_NORMAL {
		for _, reg := range allStateRegisters {
			if err := a.setBit(channel, addr, reg, bay, false); err != nil {
				return err
			}
		}
		return nil
	}
	if p == ibpi.LOCATE_OFF {
		return a.setBit(channel, addr, regLocate, bay, false)
	}

	reg, ok := patternRegister[p]
	if !ok {
		return ErrPatternRange
	}
	if err := a.writeRegister(channel, addr, regSMBusControl, 1); err != nil {
		return ErrWriteFailed
	}
	return a.setBit(channel, addr, reg, bay, true)
}

func (a *AMDIPMI) Flush(dev *model.BlockDevice) error { return nil }
