// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package phy sequences the lanes of the Rockchip PCIe PHY.
//
// The PHY has no register block of its own. It is configured through
// three general register file (GRF) words: conf carries a serial test
// interface (address, data and a write strobe), status reports PLL state,
// and laneoff holds the per-lane electrical idle bits. All three use the
// upper 16 bits as a write-enable mask.
package phy

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/platform"
	"github.com/platinasystems/pcierc/regs"
)

const MaxLanes = 4

// Variant gives the GRF offsets of a SoC's PHY control words.
type Variant struct {
	Conf, Status, LaneOff uint32
}

var RK3399 = Variant{
	Conf:    0xe220,
	Status:  0xe2a4,
	LaneOff: 0xe214,
}

// Variants by device tree compatible string.
var Variants = map[string]Variant{
	"rockchip,rk3399-pcie-phy": RK3399,
}

// conf fields
const (
	cfgWrShift   = 0
	cfgAddrShift = 1
	cfgAddrWidth = 6
	cfgDataShift = 7
	cfgDataWidth = 4
)

// test interface addresses and data
const (
	cfgPllLock  = 0x10
	cfgClkTest  = 0x10
	cfgClkScc   = 0x12
	cfgSepeRate = 1 << 3
	cfgPll100M  = 1 << 3
)

// status bits
const (
	PllLocked = 1 << 9
	PllOutput = 1 << 10
)

// laneoff: electrical idle bit of lane i is IdleShift+i.
const IdleShift = 3

type State int

const (
	Uninitialized State = iota
	Idle
	PoweringOn
	PoweredOn
	Off
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Idle:          "idle",
	PoweringOn:    "powering on",
	PoweredOn:     "powered on",
	Off:           "off",
}

func (s State) String() string { return stateNames[s] }

type Timing struct {
	// Bounds each of the PLL lock, output and relock waits.
	Pll regs.Poll
	// Delay between phases of a test interface write.
	Settle time.Duration
}

// DefaultTiming polls the PLL every 20ms for at most 50us, which in
// practice means a read, a sleep and a final read.
var DefaultTiming = Timing{
	Pll: regs.Poll{
		Sleep:   20 * time.Millisecond,
		Timeout: 50 * time.Microsecond,
	},
	Settle: time.Microsecond,
}

// Lane is one PHY lane; it implements platform.Phy.
type Lane struct {
	Index  uint
	RefClk platform.Clock
	Reset  platform.ResetLine
	// GRF window
	W regs.Window
	Variant
	Timing
	Clock regs.Clock

	state State
}

func (l *Lane) String() string { return fmt.Sprintf("phy%d", l.Index) }

func (l *Lane) State() State { return l.state }

func (l *Lane) clock() regs.Clock {
	if l.Clock == nil {
		return regs.SystemClock
	}
	return l.Clock
}

// writeConf writes data to the test interface address with a three phase
// strobe: address and data, write enable, write disable.
func (l *Lane) writeConf(addr, data uint) {
	c := l.clock()
	l.W.Write32(l.Conf, regs.HiwordField(data, cfgDataWidth, cfgDataShift)|
		regs.HiwordField(addr, cfgAddrWidth, cfgAddrShift))
	c.Sleep(l.Settle)
	l.W.Write32(l.Conf, regs.HiwordField(1, 1, cfgWrShift))
	c.Sleep(l.Settle)
	l.W.Write32(l.Conf, regs.HiwordField(0, 1, cfgWrShift))
}

func (l *Lane) selectPllLock() {
	l.W.Write32(l.Conf, regs.HiwordField(cfgPllLock, cfgAddrWidth,
		cfgAddrShift))
}

func (l *Lane) setIdle(idle bool) {
	v := uint(0)
	if idle {
		v = 1
	}
	l.W.Write32(l.LaneOff, regs.HiwordField(v, 1, IdleShift+l.Index))
}

func (l *Lane) assertReset() error {
	if err := l.Reset.Assert(); err != nil {
		log.Print("err", l, ": failed to assert phy reset: ", err)
		return fmt.Errorf("%v: assert reset: %v: %w", l, err,
			pcierc.ErrConfiguration)
	}
	return nil
}

// Init enables the reference clock and holds the lane in reset. The clock
// stays on only if the reset could be asserted.
func (l *Lane) Init() error {
	if err := l.RefClk.Enable(); err != nil {
		log.Print("err", l, ": failed to enable refclk: ", err)
		return fmt.Errorf("%v: enable refclk: %v: %w", l, err,
			pcierc.ErrConfiguration)
	}
	if err := l.assertReset(); err != nil {
		l.RefClk.Disable()
		return err
	}
	l.state = Idle
	return nil
}

func (l *Lane) poll(cond func(uint32) bool) error {
	_, err := l.Pll.Until(l.clock(), l.W, l.Status, cond)
	return err
}

// PowerOn brings up the lane PLL. On a timeout the lane reset is asserted
// again before the error is returned.
func (l *Lane) PowerOn() error {
	// Re-arm the reset Init already asserted.
	if err := l.assertReset(); err != nil {
		return err
	}
	l.state = PoweringOn

	l.selectPllLock()
	l.setIdle(false)

	if err := l.poll(func(v uint32) bool {
		return v&PllLocked == 0
	}); err != nil {
		return l.fail("pll lock")
	}

	l.writeConf(cfgClkTest, cfgSepeRate)
	l.writeConf(cfgClkScc, cfgPll100M)

	if err := l.poll(func(v uint32) bool {
		return v&PllOutput != 0
	}); err != nil {
		return l.fail("pll output")
	}

	l.selectPllLock()

	if err := l.poll(func(v uint32) bool {
		return v&PllLocked == 0
	}); err != nil {
		return l.fail("pll relock")
	}

	l.state = PoweredOn
	return nil
}

func (l *Lane) fail(wait string) error {
	log.Print("err", l, ": ", wait, " timeout")
	err := fmt.Errorf("%v: %w", l, pcierc.Timeout(wait))
	if rerr := l.Reset.Assert(); rerr != nil {
		log.Print("err", l, ": failed to reassert phy reset: ", rerr)
		err = fmt.Errorf("%w; reassert reset: %v", err, rerr)
	}
	l.state = Off
	return err
}

// PowerOff idles the lane and asserts its reset.
func (l *Lane) PowerOff() error {
	l.setIdle(true)
	if err := l.assertReset(); err != nil {
		return err
	}
	l.state = Off
	return nil
}

// Exit stops the reference clock.
func (l *Lane) Exit() error {
	if err := l.RefClk.Disable(); err != nil {
		return fmt.Errorf("%v: disable refclk: %v", l, err)
	}
	l.state = Uninitialized
	return nil
}

// Bind creates the lanes of a PHY node. A node with zero #phy-cells
// drives one lane; otherwise there are MaxLanes lanes, all sharing the
// "refclk" clock and "phy" reset.
func Bind(p platform.Provider, w regs.Window, v Variant,
	phyCells uint32) ([]*Lane, error) {
	n := MaxLanes
	if phyCells == 0 {
		n = 1
	}
	refclk, err := p.Clock("refclk")
	if err != nil {
		log.Print("err", "failed to get refclk clock: ", err)
		return nil, fmt.Errorf("phy refclk: %v: %w", err,
			pcierc.ErrConfiguration)
	}
	rst, err := p.Reset("phy")
	if err != nil {
		log.Print("err", "failed to get phy reset: ", err)
		return nil, fmt.Errorf("phy reset: %v: %w", err,
			pcierc.ErrConfiguration)
	}
	lanes := make([]*Lane, n)
	for i := range lanes {
		lanes[i] = &Lane{
			Index:   uint(i),
			RefClk:  refclk,
			Reset:   rst,
			W:       w,
			Variant: v,
			Timing:  DefaultTiming,
		}
	}
	log.Print("info", "pcie phy: ", n, " lanes")
	return lanes, nil
}
