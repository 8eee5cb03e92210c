/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysfsinv

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
)

// Snapshot is one scan's worth of inventory: every LED-capable block
// device paired with its owning controller, plus the enclosures and
// hot-plug PCI slots discovered along the way.
type Snapshot struct {
	Devices    []*model.BlockDevice
	Enclosures []*model.Enclosure
	PciSlots   []*model.PciSlot
}

// Inventory walks the kernel's sysfs/procfs surfaces and produces a
// Snapshot. Allow/exclude-list filtering is applied here, against each
// candidate's ControllerPath, exactly once per scan.
type Inventory struct {
	fs  fsReader
	log *log.Logger

	Allow   []string
	Exclude []string
}

// New builds an Inventory reading the live system's /sys and /proc.
func New(lg *log.Logger, allow, exclude []string) *Inventory {
	return &Inventory{fs: osReader{}, log: lg, Allow: allow, Exclude: exclude}
}

// NewRooted builds an Inventory reading a synthetic tree rooted at root,
// for tests.
func NewRooted(root string, lg *log.Logger, allow, exclude []string) *Inventory {
	return &Inventory{fs: rootedReader{Root: root}, log: lg, Allow: allow, Exclude: exclude}
}

// Scan produces one Snapshot. An unreadable per-device attribute does
// not abort the scan: the device falls back to a default for it (its
// /sys/block path, no SCSI host, no SAS address), and a device no
// controller rule matches is left out, without a log line either way.
// An enclosure that readEnclosure rejects is logged and skipped.
func (inv *Inventory) Scan() (*Snapshot, error) {
	snap := &Snapshot{}

	blockNames, err := inv.fs.Glob(`/sys/block/*`)
	if err != nil {
		return nil, err
	}

	amdProduct, _ := readTrimmed(inv.fs, `/sys/class/dmi/id/product_name`)
	platformID := amdPlatformID(amdProduct)
	ethanolDaytona := isEthanolOrDaytona(amdProduct)

	for _, bp := range blockNames {
		name := filepath.Base(bp)
		if strings.HasPrefix(name, `md`) || strings.HasPrefix(name, `loop`) || strings.HasPrefix(name, `ram`) {
			continue // virtual devices never carry an LED
		}

		canonical, err := inv.fs.Readlink(bp)
		sysPath := bp
		if err == nil && canonical != `` {
			sysPath = filepath.Clean(filepath.Join(filepath.Dir(bp), canonical))
		}

		hostIdx, hostPath := scsiHost(inv.fs, sysPath)

		caps := hostCaps{
			hostPath:         hostPath,
			vmdDomain:        isVMDHost(inv.fs, hostPath),
			pciehpLinked:     exists(inv.fs, `/sys/module/pciehp`),
			sesCapable:       exists(inv.fs, filepath.Join(hostPath, `enclosure`)),
			sasReachable:     hostPath != `` && exists(inv.fs, hostPath),
			npemCapable:      exists(inv.fs, filepath.Join(hostPath, `npem`)),
			libahciBacked:    exists(inv.fs, `/sys/module/libahci`),
			emEnabled:        ahciEMEnabled(inv.fs),
			sgpioCapable:     exists(inv.fs, filepath.Join(hostPath, `sgpio`)) || platformID != ``,
			amdPlatform:      platformID,
			ethanolOrDaytona: ethanolDaytona,
		}
		ctype := classify(caps)
		if ctype == model.ControllerUnknown {
			continue
		}

		controllerPath := hostPath
		if controllerPath == `` {
			controllerPath = sysPath
		}

		if !inv.passesAllowExclude(controllerPath) {
			continue
		}

		dev := &model.BlockDevice{
			SysPath:        sysPath,
			ControllerPath: controllerPath,
			HostIdx:        hostIdx,
			NVMePort:       nvmePortFromName(name),
			SASAddress:     sasAddressFromDevice(inv.fs, sysPath),
			ElementIndex:   -1,
			Controller:     &model.Controller{Type: ctype, Path: hostPath},
		}
		snap.Devices = append(snap.Devices, dev)
	}

	encPaths, err := inv.fs.Glob(`/sys/class/enclosure/*`)
	if err == nil {
		for _, ep := range encPaths {
			enc, eerr := inv.readEnclosure(ep)
			if eerr != nil {
				if inv.log != nil {
					inv.log.Warnf("skipping malformed enclosure %s: %v", ep, eerr)
				}
				continue
			}
			snap.Enclosures = append(snap.Enclosures, enc)
		}
	}

	inv.joinSESSlots(snap)

	slotPaths, err := inv.fs.Glob(`/sys/bus/pci/slots/*`)
	if err == nil {
		for _, sp := range slotPaths {
			addr, _ := readTrimmed(inv.fs, filepath.Join(sp, `address`))
			attn, _ := readTrimmed(inv.fs, filepath.Join(sp, `attention`))
			a, _ := strconv.ParseUint(attn, 10, 8)
			snap.PciSlots = append(snap.PciSlots, &model.PciSlot{SysPath: sp, Address: addr, Attention: uint8(a)})
		}
	}

	return snap, nil
}

func (inv *Inventory) passesAllowExclude(controllerPath string) bool {
	if len(inv.Allow) > 0 {
		for _, prefix := range inv.Allow {
			if strings.HasPrefix(controllerPath, prefix) {
				return true
			}
		}
		return false
	}
	if len(inv.Exclude) > 0 {
		for _, prefix := range inv.Exclude {
			if strings.HasPrefix(controllerPath, prefix) {
				return false
			}
		}
	}
	return true
}

// readEnclosure builds an SES enclosure from its class directory without
// reading any diagnostic page; the SG_IO page exchange and decode live
// in the transport package. Here we walk
// the enclosure class directory's slot subdirectories to resolve each
// slot's SES element index and the SAS address of whatever end device
// currently occupies it.
func (inv *Inventory) readEnclosure(classPath string) (*model.Enclosure, error) {
	sgLink, err := inv.fs.Readlink(filepath.Join(classPath, `device`))
	sgPath := `/dev/sg0`
	if err == nil && sgLink != `` {
		sgPath = `/dev/` + filepath.Base(sgLink)
	}
	enc := &model.Enclosure{SysPath: classPath, SgPath: sgPath}

	entries, _ := inv.fs.Glob(filepath.Join(classPath, `*`))
	for _, slotDir := range entries {
		name := filepath.Base(slotDir)
		if name == `device` || name == `power` || name == `subsystem` {
			continue
		}
		idxStr, err := readTrimmed(inv.fs, filepath.Join(slotDir, `slot`))
		if err != nil {
			continue // not a slot subdirectory
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		enc.Slots = append(enc.Slots, model.EnclosureSlot{
			ElementIndex: idx,
			SASAddress:   enclosureSlotSASAddress(inv.fs, slotDir),
		})
	}
	return enc, nil
}

// sasAddressFromDevice walks up from a block device's canonical sysfs
// path looking for the nearest ancestor carrying a sas_address
// attribute, the libsas end-device address used to join a device to
// its enclosure slot. Returns 0 if none is found.
func sasAddressFromDevice(fs fsReader, sysPath string) uint64 {
	parts := strings.Split(sysPath, string(filepath.Separator))
	for i := len(parts); i > 1; i-- {
		dir := string(filepath.Separator) + filepath.Join(parts[1:i]...)
		if addr, err := readSASAddress(fs, filepath.Join(dir, `sas_address`)); err == nil {
			return addr
		}
	}
	return 0
}

// enclosureSlotSASAddress resolves the SAS address of whatever end
// device is attached under an enclosure slot directory, trying the
// slot's own attribute first and then the attached device's.
func enclosureSlotSASAddress(fs fsReader, slotDir string) uint64 {
	if addr, err := readSASAddress(fs, filepath.Join(slotDir, `sas_address`)); err == nil {
		return addr
	}
	if addr, err := readSASAddress(fs, filepath.Join(slotDir, `device`, `sas_address`)); err == nil {
		return addr
	}
	matches, _ := fs.Glob(filepath.Join(slotDir, `device`, `*`, `sas_address`))
	for _, m := range matches {
		if addr, err := readSASAddress(fs, m); err == nil {
			return addr
		}
	}
	return 0
}

func readSASAddress(fs fsReader, path string) (uint64, error) {
	v, err := readTrimmed(fs, path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(v, `0x`), 16, 64)
}

// joinSESSlots resolves, for every SCSI-SES device, the enclosure slot
// matching its SAS address: the device's ElementIndex and the
// controller path it LED-writes through (the enclosure's /dev/sgN,
// not the SCSI host path detection resolved it to) both come from the
// owning Enclosure rather than from the per-device sysfs walk.
func (inv *Inventory) joinSESSlots(snap *Snapshot) {
	for _, dev := range snap.Devices {
		if dev.Controller == nil || dev.Controller.Type != model.ControllerSCSISES || dev.SASAddress == 0 {
			continue
		}
		for _, enc := range snap.Enclosures {
			slot := enc.SlotBySAS(dev.SASAddress)
			if slot == nil {
				continue
			}
			dev.ElementIndex = slot.ElementIndex
			dev.ControllerPath = enc.SgPath
			dev.Controller.SysPath = enc.SgPath
			break
		}
	}
}

// scsiHost walks up from a block device's canonical sysfs path to find
// the owning "hostN" ancestor directory, returning its numeric index and
// path. Devices with no SCSI host ancestor (e.g. NVMe/VMD) return -1.
func scsiHost(fs fsReader, sysPath string) (int, string) {
	parts := strings.Split(sysPath, string(filepath.Separator))
	for i := len(parts) - 1; i >= 0; i-- {
		if strings.HasPrefix(parts[i], `host`) {
			if n, err := strconv.Atoi(strings.TrimPrefix(parts[i], `host`)); err == nil {
				return n, string(filepath.Separator) + filepath.Join(parts[1:i+1]...)
			}
		}
	}
	return -1, ``
}

// nvmePortFromName extracts the controller port number from an NVMe
// block device name ("nvme3n1" -> 3); returns -1 for non-NVMe names.
func nvmePortFromName(name string) int {
	if !strings.HasPrefix(name, `nvme`) {
		return -1
	}
	rest := strings.TrimPrefix(name, `nvme`)
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1
	}
	n, err := strconv.Atoi(rest[:i])
	if err != nil {
		return -1
	}
	return n
}

func isVMDHost(fs fsReader, hostPath string) bool {
	if hostPath == `` {
		return false
	}
	link, err := fs.Readlink(filepath.Join(hostPath, `..`, `..`))
	return err == nil && strings.Contains(link, `vmd`)
}

func ahciEMEnabled(fs fsReader) bool {
	v, err := readTrimmed(fs, `/sys/module/libahci/parameters/ahci_em_messages`)
	return err == nil && v != `0` && v != ``
}
