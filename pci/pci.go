// Copyright 2016-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Addressing and access-size helpers for PCI configuration space.
package pci

import (
	"fmt"
	"strconv"
	"strings"
)

// Standard type 0/1 header offsets.
const (
	VendorIDReg      = 0x00
	DeviceIDReg      = 0x02
	CommandReg       = 0x04
	StatusReg        = 0x06
	ClassRevisionReg = 0x08
	HeaderTypeReg    = 0x0e
	CapabilityReg    = 0x34
)

type VendorID uint16
type VendorDeviceID uint16

func (v VendorID) String() string       { return fmt.Sprintf("0x%04x", uint16(v)) }
func (d VendorDeviceID) String() string { return fmt.Sprintf("0x%04x", uint16(d)) }

// Vendor/Device pair
type DeviceID struct {
	Vendor VendorID
	Device VendorDeviceID
}

// Absent is what the config space of a missing function reads as.
func (d DeviceID) Absent() bool { return d.Vendor == 0xffff }

type HeaderType uint8

const (
	Normal HeaderType = iota
	Bridge
	CardBus
)

// IsMultiFunction reports bit 7 of the header type register.
func (h HeaderType) IsMultiFunction() bool { return h&(1<<7) != 0 }

func (h HeaderType) Type() HeaderType { return h &^ (1 << 7) }

type BusAddress struct {
	Domain          uint16
	Bus, Device, Fn uint8
}

func (a BusAddress) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%01x", a.Domain, a.Bus, a.Device, a.Fn)
}

// ParseBusAddress accepts [DOMAIN:]BUS:DEVICE.FN in hex.
func ParseBusAddress(s string) (a BusAddress, err error) {
	f := strings.Split(s, ":")
	if len(f) == 3 {
		var d uint64
		if d, err = strconv.ParseUint(f[0], 16, 16); err != nil {
			return
		}
		a.Domain = uint16(d)
		f = f[1:]
	}
	if len(f) != 2 {
		err = fmt.Errorf("%s: not [DOMAIN:]BUS:DEVICE.FN", s)
		return
	}
	df := strings.Split(f[1], ".")
	if len(df) != 2 {
		err = fmt.Errorf("%s: missing function", s)
		return
	}
	var bus, dev, fn uint64
	if bus, err = strconv.ParseUint(f[0], 16, 8); err != nil {
		return
	}
	if dev, err = strconv.ParseUint(df[0], 16, 5); err != nil {
		return
	}
	if fn, err = strconv.ParseUint(df[1], 16, 3); err != nil {
		return
	}
	a.Bus, a.Device, a.Fn = uint8(bus), uint8(dev), uint8(fn)
	return
}

// ConfigOffset is the byte offset of the 32 bit word holding reg in an
// enhanced configuration window: bus[27:20] device[19:15] fn[14:12].
func (a BusAddress) ConfigOffset(reg uint) uint32 {
	return uint32(a.Bus)<<20 | uint32(a.Device&0x1f)<<15 |
		uint32(a.Fn&7)<<12 | uint32(reg&0xfff)&^3
}

// Size of a configuration access in bytes.
type Size uint8

const (
	Size8  Size = 1
	Size16 Size = 2
	Size32 Size = 4
)

func (s Size) Valid() bool { return s == Size8 || s == Size16 || s == Size32 }

func (s Size) mask() uint32 {
	if s >= Size32 {
		return 0xffffffff
	}
	return 1<<(8*uint(s)) - 1
}

// AllOnes is what a read of a missing function returns.
func (s Size) AllOnes() uint32 { return s.mask() }

func (s Size) String() string { return strconv.Itoa(int(s)) }

// ParseSize accepts 1, 2, 4 or 8, 16, 32.
func ParseSize(v string) (Size, error) {
	switch v {
	case "1", "8", "b":
		return Size8, nil
	case "2", "16", "w":
		return Size16, nil
	case "4", "32", "l":
		return Size32, nil
	}
	return 0, fmt.Errorf("%s: invalid access size", v)
}

func shift(reg uint, s Size) uint {
	return 8 * (reg & uint(4-s) & 3)
}

// Extract returns the s byte field of the word containing reg.
func Extract(word uint32, reg uint, s Size) uint32 {
	return word >> shift(reg, s) & s.mask()
}

// Merge replaces the s byte field of old containing reg with v and returns
// the full word to write back.
func Merge(old, v uint32, reg uint, s Size) uint32 {
	sh := shift(reg, s)
	m := s.mask() << sh
	return old&^m | v<<sh&m
}
