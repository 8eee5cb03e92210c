/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package model holds the core data types shared across the inventory,
// RAID, transport and dispatch layers: BlockDevice, Controller,
// Enclosure, RaidDevice, Slave, PciSlot, Slot and the scan-scoped Daemon
// context, passed explicitly through the call chain in place of
// process-wide globals.
package model

import (
	"sync"
	"time"

	"github.com/gravwell/ledmon/ibpi"
)

// ScanEpoch is a monotonically increasing scan counter. BlockDevice.Seen
// is stamped with the current epoch at the start of every scan; a device
// was observed in the most recent scan iff Seen == the epoch the scan
// started with.
type ScanEpoch uint64

// ControllerType identifies which backplane protocol owns a device.
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerAHCI
	ControllerSCSISES
	ControllerNPEM
	ControllerVMD
	ControllerAMDSGPIO
	ControllerAMDIPMI
)

func (c ControllerType) String() string {
	switch c {
	case ControllerAHCI:
		return `AHCI`
	case ControllerSCSISES:
		return `SCSI-SES`
	case ControllerNPEM:
		return `NPEM`
	case ControllerVMD:
		return `VMD`
	case ControllerAMDSGPIO:
		return `AMD-SGPIO`
	case ControllerAMDIPMI:
		return `AMD-IPMI`
	}
	return `UNKNOWN`
}

// Controller is an LED-capable storage controller discovered during a
// scan. Transport-specific state (SES configuration pages, AMD cache fd,
// etc.) is held by the transport driver, keyed off Path.
type Controller struct {
	Type ControllerType
	// Path is the sysfs path of the host/capability (e.g. the SATA host,
	// the SES enclosure's class device, the NPEM/VMD capability).
	Path string
	// SysPath is the /dev/sgN path for SCSI-SES controllers; empty
	// otherwise.
	SysPath string
}

// PciSlot is a hot-plug-capable PCIe slot (the VMD case).
type PciSlot struct {
	SysPath   string // /sys/bus/pci/slots/<n>
	Address   string // PCI bus address, e.g. 0000:65:00.0
	Attention uint8  // last-read attention register nibble
}

// Slave is the association of a BlockDevice with a RaidDevice.
type Slave struct {
	State SlaveState
	Slot  int // member slot index, -1 if none
	Errors uint64
	// DeviceName is the bare disk name (e.g. "sda") the md slave
	// directory's symlink resolves to; used to join against a
	// BlockDevice by basename of SysPath, since the md sysfs tree never
	// carries a stable pointer to the device itself.
	DeviceName string
	Dev        *BlockDevice
	Array      *RaidDevice
}

// SlaveState are the md-sysfs slave state flags relevant to LED
// reconciliation; several may be set at once (e.g. "spare" + "in_sync").
type SlaveState struct {
	Spare       bool
	InSync      bool
	Faulty      bool
	WriteMostly bool
	Blocked     bool
}

// SyncAction mirrors md/sync_action.
type SyncAction int

const (
	SyncIdle SyncAction = iota
	SyncReshape
	SyncResync
	SyncRecheck
	SyncRecover
	SyncRepair
)

func SyncActionFromString(s string) SyncAction {
	switch s {
	case `reshape`:
		return SyncReshape
	case `resync`:
		return SyncResync
	case `check`:
		return SyncRecheck
	case `recover`:
		return SyncRecover
	case `repair`:
		return SyncRepair
	}
	return SyncIdle
}

// RaidLevel mirrors md/level.
type RaidLevel string

const (
	RaidLevel0        RaidLevel = `raid0`
	RaidLevel1        RaidLevel = `raid1`
	RaidLevel4        RaidLevel = `raid4`
	RaidLevel5        RaidLevel = `raid5`
	RaidLevel6        RaidLevel = `raid6`
	RaidLevel10       RaidLevel = `raid10`
	RaidLevelLinear   RaidLevel = `linear`
	RaidLevelFaulty   RaidLevel = `faulty`
	RaidLevelContainr RaidLevel = `container`
)

// ArrayState mirrors md/array_state.
type ArrayState int

const (
	ArrayStateUnknown ArrayState = iota
	ArrayStateClear
	ArrayStateInactive
	ArrayStateSuspended
	ArrayStateReadonly
	ArrayStateReadAuto
	ArrayStateClean
	ArrayStateActive
	ArrayStateWriteMostly
)

func ArrayStateFromString(s string) ArrayState {
	switch s {
	case `clear`:
		return ArrayStateClear
	case `inactive`:
		return ArrayStateInactive
	case `suspended`:
		return ArrayStateSuspended
	case `readonly`:
		return ArrayStateReadonly
	case `read-auto`:
		return ArrayStateReadAuto
	case `clean`:
		return ArrayStateClean
	case `active`, `active-idle`:
		return ArrayStateActive
	case `write-pending`:
		return ArrayStateWriteMostly
	}
	return ArrayStateUnknown
}

// RaidDevice is a software RAID array (container or volume).
type RaidDevice struct {
	SysPath    string
	Container  bool
	Level      RaidLevel
	State      ArrayState
	SyncAction SyncAction
	RaidDisks  int
	Degraded   int
	Slaves     []*Slave
}

// Slot is the polymorphic, controller-agnostic view over {SES slot, NPEM
// controller, VMD pci-slot, AHCI SATA port} used by the control
// utility's slot mode.
type Slot struct {
	Type    ControllerType
	ID      string // stable slot identifier string
	Device  string // attached block device name, if any
	State   ibpi.Pattern
}

// BlockDevice is one physical block device exposed by the kernel.
type BlockDevice struct {
	// SysPath is the canonical sysfs path; stable across scans.
	SysPath string
	// ControllerPath is the canonical path to the LED-message sink,
	// independent of SysPath and possibly outliving physical presence.
	ControllerPath string
	// HostIdx identifies the SCSI host for SAS paths; -1 if not
	// applicable (NVMe/VMD devices have no SCSI host ancestor).
	HostIdx int
	// NVMePort identifies the NVMe controller port parsed from the
	// block device name (e.g. "nvme3n1" -> 3); -1 if not an NVMe
	// device.
	NVMePort int
	// SASAddress is the device's libsas end-device address, used to
	// join a SCSI-SES device to its enclosure slot; 0 if unknown.
	SASAddress uint64
	// ElementIndex is the SES-2 status-page element index of the slot
	// this device occupies, resolved by joining SASAddress against the
	// owning Enclosure's Slots; -1 if unresolved.
	ElementIndex int

	// Controller is the per-scan owning controller; cleared at the end
	// of each scan (see Invalidate).
	Controller *Controller

	Current  ibpi.Pattern
	Previous ibpi.Pattern
	Seen     ScanEpoch

	Raid *Slave // optional RAID membership

	// PendingEvent carries a udev add/remove observed since the last
	// scan, consumed (and cleared) the next time Next() is evaluated.
	PendingEvent ibpi.TransitionEvent
}

// Invalidate clears the per-scan-only fields at the end of the
// dispatcher's pass so the next scan recomputes them from scratch.
func (b *BlockDevice) Invalidate() {
	b.Controller = nil
}

// Daemon is the explicit, passed-by-reference context that carries what
// would otherwise be process-wide configuration and "current scan
// timestamp" globals. It is safe to read concurrently; Epoch is only
// ever mutated by the event loop between ticks.
type Daemon struct {
	mu    sync.Mutex
	epoch ScanEpoch

	// StartTime is recorded once, at daemon start, for uptime reporting.
	StartTime time.Time
	// RunID is a per-process identifier stamped into structured log
	// lines, distinguishing restarts in aggregated logs.
	RunID string
}

// NewDaemon creates a Daemon context with a fresh epoch of zero.
func NewDaemon(runID string) *Daemon {
	return &Daemon{StartTime: time.Now(), RunID: runID}
}

// NextEpoch advances and returns the scan epoch; called once at the top
// of every tick.
func (d *Daemon) NextEpoch() ScanEpoch {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epoch++
	return d.epoch
}

// Epoch returns the current scan epoch without advancing it.
func (d *Daemon) Epoch() ScanEpoch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch
}
