// Copyright 2016-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pcie

import (
	"fmt"
)

const (
	Type_express_endpoint = iota
	Type_legacy_endpoint
	_
	_
	Type_root_port
	Type_upstream_port
	Type_downstream_port
	Type_pcie_to_pci_bridge
	Type_pci_to_pcie_bridge
	Type_root_complex_integrated_endpoint
	Type_root_complex_event_collector
)

var typeNames = [...]string{
	Type_express_endpoint:                 "express endpoint",
	Type_legacy_endpoint:                  "legacy endpoint",
	Type_root_port:                        "root port",
	Type_upstream_port:                    "upstream port",
	Type_downstream_port:                  "downstream port",
	Type_pcie_to_pci_bridge:               "pcie to pci bridge",
	Type_pci_to_pcie_bridge:               "pci to pcie bridge",
	Type_root_complex_integrated_endpoint: "root complex integrated endpoint",
	Type_root_complex_event_collector:     "root complex event collector",
}

type Type uint8

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("type %d", t)
}

type Flags struct {
	// [3:0] version (e.g. 2 for pcie gen 2, 3 for gen 3)
	Version uint8

	// [7:4] type (Type_*)
	Type Type

	// [8]
	SlotImplemented bool

	// [13:9]
	Msi uint8
}

// DecodeFlags decodes the PCIe capabilities register.
func DecodeFlags(x uint16) (v Flags) {
	v.Version = uint8(x & 0xf)
	v.Type = Type((x >> 4) & 0xf)
	v.SlotImplemented = x&(1<<8) != 0
	v.Msi = uint8((x >> 9) & 0x1f)
	return
}

func (f *Flags) String() string {
	return fmt.Sprintf("type %s, version %d, msi %d", f.Type.String(), f.Version, f.Msi)
}

// Link capabilities:
//   [3:0] max link speed (1 = 2.5GT/s)
//   [9:4] max link width
//   [11:10] ASPM support: bit 10 L0s, bit 11 L1
//   [17:15] L1 exit latency
//   [31:24] port number
const (
	LinkCapAspmL0s uint32 = 1 << 10
	LinkCapAspmL1  uint32 = 1 << 11
)

type LinkCapabilities struct {
	MaxSpeed uint8
	MaxWidth uint8
	L0s, L1  bool
	Port     uint8
}

func DecodeLinkCapabilities(x uint32) (v LinkCapabilities) {
	v.MaxSpeed = uint8(x & 0xf)
	v.MaxWidth = uint8((x >> 4) & 0x3f)
	v.L0s = x&LinkCapAspmL0s != 0
	v.L1 = x&LinkCapAspmL1 != 0
	v.Port = uint8(x >> 24)
	return
}

var speeds = [...]string{1: "2.5GT/s", 2: "5GT/s", 3: "8GT/s", 4: "16GT/s"}

func (c *LinkCapabilities) String() (s string) {
	speed := "unknown speed"
	if int(c.MaxSpeed) < len(speeds) && speeds[c.MaxSpeed] != "" {
		speed = speeds[c.MaxSpeed]
	}
	s = fmt.Sprintf("x%d %s", c.MaxWidth, speed)
	if c.L0s {
		s += " L0s"
	}
	if c.L1 {
		s += " L1"
	}
	return
}
