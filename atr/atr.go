// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package atr programs the root complex address translation regions.
//
// The AXI aperture starts with a 32MiB region that maps configuration
// space; the rest of the aperture, up to the APB register base, is cut
// into 1MiB outbound regions. Only identity mappings are supported, so a
// resource window at CPU address A always lands in outbound region
// 1 + (A - axi - 32MiB) / 1MiB.
package atr

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/regs"
)

const (
	Region0Size = 32 << 20
	RegionSize  = 1 << 20

	// ATR registers relative to the APB base.
	Base = 0xc00000

	// Inbound region passing every address through unmodified.
	InboundRegion = 2
)

func OutboundAddr0(i int) uint32 { return Base + 0x000 + uint32(i)*0x20 }
func OutboundAddr1(i int) uint32 { return Base + 0x004 + uint32(i)*0x20 }
func OutboundDesc0(i int) uint32 { return Base + 0x008 + uint32(i)*0x20 }
func OutboundDesc1(i int) uint32 { return Base + 0x00c + uint32(i)*0x20 }
func InboundAddr0(i int) uint32  { return Base + 0x800 + uint32(i)*0x8 }
func InboundAddr1(i int) uint32  { return Base + 0x804 + uint32(i)*0x8 }

// Header types in DESC0.
type Header uint32

const (
	HdrMem      Header = 0x2
	HdrIO       Header = 0x6
	HdrCfgType0 Header = 0xa
	HdrCfgType1 Header = 0xb
	// Pass the requester id through.
	HdrRID Header = 1 << 23
)

func (h Header) String() string {
	s := ""
	switch h &^ HdrRID {
	case HdrMem:
		s = "mem"
	case HdrIO:
		s = "io"
	case HdrCfgType0:
		s = "cfg0"
	case HdrCfgType1:
		s = "cfg1"
	default:
		s = fmt.Sprintf("hdr 0x%x", uint32(h&^HdrRID))
	}
	if h&HdrRID != 0 {
		s += "+rid"
	}
	return s
}

// Flags of a resource window.
type Flags uint

const (
	Memory Flags = 0
	IO     Flags = 1 << iota
	Prefetch
	SysMemory
)

func (f Flags) String() string {
	switch {
	case f&SysMemory != 0:
		return "sysmem"
	case f&IO != 0:
		return "io"
	case f&Prefetch != 0:
		return "mem prefetch"
	}
	return "mem"
}

// Window is a bus resource window handed to the root complex.
type Window struct {
	BusStart, PhysStart, Size uint64
	Flags
}

func (w Window) String() string {
	return fmt.Sprintf("%v 0x%x-0x%x", w.Flags, w.BusStart,
		w.BusStart+w.Size-1)
}

// Entry is one programmed translation region.
type Entry struct {
	Region  int
	Inbound bool
	Header  Header
	// Number of address bits passed through, less one.
	Bits uint32
}

// Slot is the 0 based index of an outbound entry within the aperture after
// the configuration region; -1 for the configuration and inbound entries.
func (e Entry) Slot() int {
	if e.Inbound || e.Region == 0 {
		return -1
	}
	return e.Region - 1
}

func (e Entry) String() string {
	if e.Inbound {
		return fmt.Sprintf("ib%d: %d bits", e.Region, e.Bits+1)
	}
	return fmt.Sprintf("ob%d: %v %d bits", e.Region, e.Header, e.Bits+1)
}

// Table builds the translation regions of one controller.
type Table struct {
	// APB register window
	W                regs.Window
	AxiBase, ApbBase uint64

	entries []Entry
}

// Entries returns what the last Init programmed, in order.
func (t *Table) Entries() []Entry { return t.entries }

// Outbound returns the programmed outbound slots.
func (t *Table) Outbound() (es []Entry) {
	for _, e := range t.entries {
		if e.Slot() >= 0 {
			es = append(es, e)
		}
	}
	return
}

func (t *Table) outbound(region int, bits uint32, h Header) {
	t.W.Write32(OutboundAddr0(region), bits)
	t.W.Write32(OutboundAddr1(region), 0)
	t.W.Write32(OutboundDesc0(region), uint32(h))
	t.W.Write32(OutboundDesc1(region), 0)
	t.entries = append(t.entries, Entry{
		Region: region,
		Header: h,
		Bits:   bits,
	})
}

func (t *Table) inbound(region int, bits uint32) {
	t.W.Write32(InboundAddr0(region), bits)
	t.W.Write32(InboundAddr1(region), 0)
	t.entries = append(t.entries, Entry{
		Region:  region,
		Inbound: true,
		Bits:    bits,
	})
}

// Check returns why w can't be mapped or nil; system memory is never
// mapped and always passes.
func (t *Table) Check(i int, w Window) error {
	if w.Flags&SysMemory != 0 {
		return nil
	}
	bad := func(format string, args ...interface{}) error {
		return &pcierc.MappingError{
			Index:  i,
			Reason: fmt.Sprintf(format, args...),
		}
	}
	if w.BusStart != w.PhysStart {
		return bad("bus 0x%x != phys 0x%x", w.BusStart, w.PhysStart)
	}
	if w.BusStart&(RegionSize-1) != 0 {
		return bad("0x%x not 1MiB aligned", w.BusStart)
	}
	if w.BusStart < t.AxiBase+Region0Size {
		return bad("0x%x below aperture 0x%x", w.BusStart,
			t.AxiBase+Region0Size)
	}
	if w.Size > t.ApbBase || w.BusStart > t.ApbBase-w.Size {
		return bad("0x%x+0x%x beyond aperture 0x%x", w.BusStart,
			w.Size, t.ApbBase)
	}
	return nil
}

// Init programs the configuration region, one outbound region per MiB of
// each window and the inbound passthrough. The first invalid window stops
// Init before any of its regions are written; regions of earlier windows
// remain programmed.
func (t *Table) Init(windows []Window) error {
	t.entries = nil

	t.outbound(0, 25-1, HdrCfgType0|HdrRID)

	for i, w := range windows {
		if w.Flags&SysMemory != 0 {
			continue
		}
		if err := t.Check(i, w); err != nil {
			log.Print("err", "atr: ", err)
			return err
		}
		h := HdrMem
		if w.Flags&IO != 0 {
			h = HdrIO
		}
		region := 1 + int((w.BusStart-t.AxiBase-Region0Size)/RegionSize)
		for n := (w.Size + RegionSize - 1) / RegionSize; n > 0; n-- {
			t.outbound(region, 32-1, h|HdrRID)
			region++
		}
	}

	t.inbound(InboundRegion, 32-1)
	return nil
}
