// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package cfgspace routes configuration cycles to the root complex.
//
// Device 0 of the root bus is the root port itself, reached through its
// local configuration window. Device 0 of the next bus is the endpoint
// behind the link, reached through the downstream window at the base of the
// AXI aperture. Nothing else can exist behind a single root port, so every
// other address reads as all ones and ignores writes.
package cfgspace

import (
	"errors"
	"fmt"

	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/regs"
)

var ErrAccess = errors.New("invalid config access")

type Kind int

const (
	Absent Kind = iota
	Local
	Downstream
)

var kindNames = [...]string{
	Absent:     "absent",
	Local:      "local",
	Downstream: "downstream",
}

func (k Kind) String() string { return kindNames[k] }

// Target is a decoded configuration address: which window and the word
// offset within it. Offset is meaningless for Absent.
type Target struct {
	Kind
	Offset uint32
}

func (t Target) String() string {
	if t.Kind == Absent {
		return t.Kind.String()
	}
	return fmt.Sprintf("%v 0x%06x", t.Kind, t.Offset)
}

// Proxy is the configuration accessor handed to the enumerator.
type Proxy struct {
	// Root port config window, apb base + 0x800000.
	Local regs.Window
	// Endpoint config window, axi base.
	Downstream regs.Window
	RootBus    uint8
}

// Decode maps a function and register to its backing window.
func (p *Proxy) Decode(a pci.BusAddress, reg uint) Target {
	t := Target{Offset: a.ConfigOffset(reg)}
	switch {
	case a.Device != 0:
		t.Kind = Absent
	case a.Bus == p.RootBus:
		t.Kind = Local
	case int(a.Bus) == int(p.RootBus)+1:
		t.Kind = Downstream
	default:
		t.Kind = Absent
	}
	return t
}

func (p *Proxy) window(k Kind) regs.Window {
	switch k {
	case Local:
		return p.Local
	case Downstream:
		return p.Downstream
	}
	return nil
}

func checkSize(a pci.BusAddress, reg uint, s pci.Size) error {
	if !s.Valid() {
		return fmt.Errorf("%v 0x%x: size %v: %w", a, reg, s, ErrAccess)
	}
	return nil
}

func checkAlign(a pci.BusAddress, reg uint, s pci.Size) error {
	if reg&uint(s-1) != 0 {
		return fmt.Errorf("%v 0x%x: unaligned %v byte access: %w",
			a, reg, s, ErrAccess)
	}
	return nil
}

// ReadConfig returns the s byte register at reg. Absent functions read as
// all ones at any offset.
func (p *Proxy) ReadConfig(a pci.BusAddress, reg uint, s pci.Size) (uint32,
	error) {
	if err := checkSize(a, reg, s); err != nil {
		return 0, err
	}
	t := p.Decode(a, reg)
	if t.Kind == Absent {
		return s.AllOnes(), nil
	}
	if err := checkAlign(a, reg, s); err != nil {
		return 0, err
	}
	return pci.Extract(p.window(t.Kind).Read32(t.Offset), reg, s), nil
}

// WriteConfig merges the s byte value v into the word holding reg. Writes
// to absent functions are dropped.
func (p *Proxy) WriteConfig(a pci.BusAddress, reg uint, v uint32,
	s pci.Size) error {
	if err := checkSize(a, reg, s); err != nil {
		return err
	}
	t := p.Decode(a, reg)
	if t.Kind == Absent {
		return nil
	}
	if err := checkAlign(a, reg, s); err != nil {
		return err
	}
	w := p.window(t.Kind)
	w.Write32(t.Offset, pci.Merge(w.Read32(t.Offset), v, reg, s))
	return nil
}

// DeviceID reads the vendor and device ids of a function.
func (p *Proxy) DeviceID(a pci.BusAddress) (id pci.DeviceID, err error) {
	v, err := p.ReadConfig(a, pci.VendorIDReg, pci.Size32)
	if err != nil {
		return
	}
	id.Vendor = pci.VendorID(v)
	id.Device = pci.VendorDeviceID(v >> 16)
	return
}

// Function is a present function found by Scan.
type Function struct {
	Addr   pci.BusAddress
	ID     pci.DeviceID
	Class  pci.ClassRevision
	Header pci.HeaderType
}

func (f Function) String() string {
	return fmt.Sprintf("%v %v:%v %v", f.Addr, f.ID.Vendor, f.ID.Device,
		f.Class.Class())
}

// Scan lists the present functions of device 0 on the root and downstream
// buses. Function 1 and up are only probed on multi-function devices.
func (p *Proxy) Scan() (fs []Function, err error) {
	buses := []uint8{p.RootBus}
	if p.RootBus < 0xff {
		buses = append(buses, p.RootBus+1)
	}
	for _, bus := range buses {
		for fn := uint8(0); fn < 8; fn++ {
			f := Function{Addr: pci.BusAddress{Bus: bus, Fn: fn}}
			if f.ID, err = p.DeviceID(f.Addr); err != nil {
				return
			}
			if f.ID.Absent() {
				if fn == 0 {
					break
				}
				continue
			}
			v, _ := p.ReadConfig(f.Addr, pci.ClassRevisionReg, pci.Size32)
			f.Class = pci.ClassRevision(v)
			v, _ = p.ReadConfig(f.Addr, pci.HeaderTypeReg, pci.Size8)
			f.Header = pci.HeaderType(v)
			fs = append(fs, f)
			if fn == 0 && !f.Header.IsMultiFunction() {
				break
			}
		}
	}
	return
}
