// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package cru drives Rockchip clock-and-reset-unit soft resets and clock
// gates. Both are banks of 16 bit fields behind a write-enable mask: id n
// is bit n%16 of register n/16.
package cru

import (
	"fmt"

	"github.com/platinasystems/pcierc/platform"
	"github.com/platinasystems/pcierc/regs"
)

const (
	RK3399ClkGateCon  = 0x300
	RK3399SoftRstCon  = 0x400
	RK3399CruWindowSz = 0x1000
)

// Unit is one clock and reset unit.
type Unit struct {
	W regs.Window
	// Offsets of CLKGATE_CON0 and SOFTRST_CON0.
	GateCon, SoftRstCon uint32
	// Clock specifier id to gate id. Clock ids number the whole clock
	// tree, not just its gates, so only the listed clocks can be
	// switched.
	Clocks map[uint]uint
}

// RK3399 clock specifier ids, as in the device tree binding.
const (
	RK3399SclkPciePhyRef = 138
)

// RK3399Clocks lists the gates of the clocks used here. The PCIe PHY
// reference mux has no gate of its own; its 100MHz source is gated by
// CLKGATE_CON12 bit 6.
var RK3399Clocks = map[uint]uint{
	RK3399SclkPciePhyRef: 12*16 + 6,
}

func RK3399(w regs.Window) *Unit {
	return &Unit{
		W:          w,
		GateCon:    RK3399ClkGateCon,
		SoftRstCon: RK3399SoftRstCon,
		Clocks:     RK3399Clocks,
	}
}

func bank(base uint32, id uint) (uint32, uint) {
	return base + uint32(id/16)*4, id % 16
}

func (u *Unit) set(base uint32, id uint, v bool) {
	o, bit := bank(base, id)
	x := uint32(0)
	if v {
		x = 1
	}
	u.W.Write32(o, regs.HiwordUpdate(1<<bit, x<<bit))
}

// Reset returns the soft reset line with the given specifier id.
func (u *Unit) Reset(id uint) *Reset { return &Reset{u, id} }

// Gate returns the clock gate with the given id. A set gate bit stops the
// clock.
func (u *Unit) Gate(id uint) *Gate { return &Gate{u, id} }

// Clock returns the gate of a clock specifier id.
func (u *Unit) Clock(id uint) (*Gate, error) {
	g, found := u.Clocks[id]
	if !found {
		return nil, fmt.Errorf("clock %d: %w", id, platform.ErrNotFound)
	}
	return u.Gate(g), nil
}

type Reset struct {
	u  *Unit
	id uint
}

func (r *Reset) Assert() error {
	r.u.set(r.u.SoftRstCon, r.id, true)
	return nil
}

func (r *Reset) Deassert() error {
	r.u.set(r.u.SoftRstCon, r.id, false)
	return nil
}

// Asserted reads back the reset bit.
func (r *Reset) Asserted() bool {
	o, bit := bank(r.u.SoftRstCon, r.id)
	return r.u.W.Read32(o)&(1<<bit) != 0
}

type Gate struct {
	u  *Unit
	id uint
}

func (g *Gate) Enable() error {
	g.u.set(g.u.GateCon, g.id, false)
	return nil
}

func (g *Gate) Disable() error {
	g.u.set(g.u.GateCon, g.id, true)
	return nil
}

func (g *Gate) Enabled() bool {
	o, bit := bank(g.u.GateCon, g.id)
	return g.u.W.Read32(o)&(1<<bit) == 0
}
