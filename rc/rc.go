// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package rc brings up a Rockchip PCIe root complex.
//
// New binds the controller to its board capabilities; Probe then runs the
// bring-up sequence once: reset and PHY sequencing, Gen1 link training,
// root port identity, and address translation. Nothing is retried. A
// failed Probe leaves the hardware as the last completed step left it.
package rc

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/atr"
	"github.com/platinasystems/pcierc/cfgspace"
	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/pcie"
	"github.com/platinasystems/pcierc/phy"
	"github.com/platinasystems/pcierc/platform"
	"github.com/platinasystems/pcierc/regs"
)

// Reset line names, all mandatory.
var ResetNames = [...]string{
	"aclk",
	"core",
	"mgmt",
	"mgmt-sticky",
	"pclk",
	"pipe",
	"pm",
}

// Optional supply names.
var SupplyNames = []string{"vpcie3v3", "vpcie1v8", "vpcie0v9"}

const (
	DefaultEndpointLine = "ep"
	DefaultPhy          = "pciephy"
)

type Timing struct {
	// After asserting the core resets.
	ResetSettle time.Duration
	Link        regs.Poll
}

var DefaultTiming = Timing{
	ResetSettle: 10 * time.Microsecond,
	Link: regs.Poll{
		Sleep:   20 * time.Microsecond,
		Timeout: 500 * time.Millisecond,
	},
}

// Config is the board description of one controller.
type Config struct {
	AxiBase, ApbBase uint64
	RootBus          uint8
	Lanes            uint32
	// Endpoint presence (PERST#) line, default DefaultEndpointLine.
	EndpointLine string
	// Optional supplies; nil means SupplyNames.
	Supplies []string
	// PHY lane names by slot; empty slots are unused. All empty means
	// DefaultPhy in slot 0.
	Phys [phy.MaxLanes]string
	// Clear the ASPM L0s capability of the root port.
	NoL0s bool
	// Resource windows to map through the translation table.
	Windows []atr.Window
	Timing
}

// NormalizeLanes returns n if it's a supported lane count, otherwise 1.
func NormalizeLanes(n uint32) uint32 {
	switch n {
	case 1, 2, 4:
		return n
	}
	log.Print("warn", n, " is invalid num-lanes, default to use 1 lane")
	return 1
}

// Controller is one root complex.
type Controller struct {
	Config
	// APB registers and the AXI downstream configuration window.
	Apb, Axi regs.Window
	Clock    regs.Clock

	// Optional supplies that could not be found or enabled.
	Unavailable []error

	resets   map[string]platform.ResetLine
	ep       platform.Line
	supplies []platform.Regulator
	// nil slots are invalid
	phys  [phy.MaxLanes]platform.Phy
	proxy *cfgspace.Proxy
	atr   atr.Table

	linkUp bool
	err    error
}

// New validates cfg and acquires every capability the controller uses.
// Missing mandatory ones fail with pcierc.ErrConfiguration; optional
// supplies are enabled as they are found.
func New(cfg Config, p platform.Provider, apb, axi regs.Window) (*Controller,
	error) {
	if cfg.AxiBase == 0 || axi == nil {
		log.Print("err", "missing axi-base")
		return nil, pcierc.Configuration("axi-base")
	}
	if cfg.ApbBase == 0 || apb == nil {
		log.Print("err", "missing apb-base")
		return nil, pcierc.Configuration("apb-base")
	}
	if cfg.EndpointLine == "" {
		cfg.EndpointLine = DefaultEndpointLine
	}
	if cfg.Supplies == nil {
		cfg.Supplies = SupplyNames
	}
	if cfg.Phys == [phy.MaxLanes]string{} {
		cfg.Phys[0] = DefaultPhy
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming
	}
	c := &Controller{
		Config: cfg,
		Apb:    apb,
		Axi:    axi,
		resets: make(map[string]platform.ResetLine),
	}

	var err error
	if c.ep, err = p.Line(cfg.EndpointLine); err != nil {
		log.Print("err", c, ": failed to find ep-gpios: ", err)
		return nil, pcierc.Configuration("ep-gpios: %v", err)
	}

	c.Lanes = NormalizeLanes(cfg.Lanes)

	for _, name := range ResetNames {
		r, err := p.Reset(name)
		if err != nil {
			log.Print("err", c, ": failed to get resets: ", err)
			return nil, pcierc.Configuration("%v", err)
		}
		c.resets[name] = r
	}

	for _, name := range cfg.Supplies {
		r, err := p.Regulator(name)
		if err == nil {
			err = r.SetEnable(true)
		}
		if err != nil {
			log.Print("warn", c, ": no ", name, ": ", err)
			c.Unavailable = append(c.Unavailable,
				fmt.Errorf("%s: %v: %w", name, err,
					pcierc.ErrResourceUnavailable))
			continue
		}
		c.supplies = append(c.supplies, r)
	}

	for i, name := range cfg.Phys {
		if name == "" {
			continue
		}
		if c.phys[i], err = p.Phy(name); err != nil {
			log.Print("err", c, ": failed get phy: ", err)
			return nil, pcierc.Configuration("%v", err)
		}
	}

	c.proxy = &cfgspace.Proxy{
		Local:      regs.Offset(apb, RCConfigBase),
		Downstream: axi,
		RootBus:    cfg.RootBus,
	}
	return c, nil
}

func (c *Controller) String() string { return fmt.Sprint("pcie-", c.RootBus) }

func (c *Controller) clock() regs.Clock {
	if c.Clock == nil {
		return regs.SystemClock
	}
	return c.Clock
}

// ValidPhys lists the bound lane slots.
func (c *Controller) ValidPhys() (slots []int) {
	for i, p := range c.phys {
		if p != nil {
			slots = append(slots, i)
		}
	}
	return
}

// Proxy is the configuration accessor for the enumerator; it is only
// meaningful once Probe has succeeded.
func (c *Controller) Proxy() *cfgspace.Proxy { return c.proxy }

// Outbound returns the translation slots programmed by the last Probe.
func (c *Controller) Outbound() []atr.Entry { return c.atr.Outbound() }

func (c *Controller) assert(names ...string) error {
	for _, name := range names {
		if err := c.resets[name].Assert(); err != nil {
			return fmt.Errorf("assert %s: %w", name, err)
		}
	}
	return nil
}

func (c *Controller) deassert(names ...string) error {
	for _, name := range names {
		if err := c.resets[name].Deassert(); err != nil {
			return fmt.Errorf("deassert %s: %w", name, err)
		}
	}
	return nil
}

func (c *Controller) endpoint(present bool) error {
	if err := c.ep.SetValue(present); err != nil {
		return fmt.Errorf("ep-gpios: %w", err)
	}
	return nil
}

func (c *Controller) eachPhy(op string, f func(platform.Phy) error) error {
	for i, p := range c.phys {
		if p == nil {
			continue
		}
		if err := f(p); err != nil {
			return fmt.Errorf("phy%d %s: %w", i, op, err)
		}
	}
	return nil
}

// Probe runs the bring-up sequence and returns the root bus number.
func (c *Controller) Probe() (bus uint8, err error) {
	c.linkUp = false
	defer func() {
		c.err = err
		if err != nil {
			log.Print("err", c, ": ", err)
		}
	}()

	if err = c.endpoint(false); err != nil {
		return
	}
	if err = c.assert("aclk", "pclk", "pm"); err != nil {
		return
	}
	if err = c.eachPhy("init", platform.Phy.Init); err != nil {
		return
	}
	if err = c.assert("core", "mgmt", "mgmt-sticky", "pipe"); err != nil {
		return
	}
	c.clock().Sleep(c.ResetSettle)
	if err = c.deassert("aclk", "pclk", "pm"); err != nil {
		return
	}

	c.Apb.Write32(ClientConfig, ClientGenSel1|ClientLinkTrain|ClientARI|
		ClientLanes(c.Lanes))

	// Lanes already on stay on if a later one fails.
	if err = c.eachPhy("power on", platform.Phy.PowerOn); err != nil {
		return
	}
	if err = c.deassert("core", "mgmt", "mgmt-sticky", "pipe"); err != nil {
		return
	}

	c.Apb.Write32(ClientConfig, ClientLinkTrain)

	if err = c.endpoint(true); err != nil {
		return
	}

	if _, err = c.Link.Until(c.clock(), c.Apb, ClientBasicStatus1,
		LinkUp); err != nil {
		err = pcierc.Timeout("link training")
		return
	}
	c.linkUp = true

	c.Apb.Write32(LMVendorID, uint32(pci.Rockchip))
	c.Apb.Write32(RCClassRevision, pci.Bridge_PCI.Word())
	c.Apb.Write32(LMRcBar, RcBarPrefetchEnable|RcBarPrefetch64)

	if c.NoL0s {
		v := c.Apb.Read32(RCLinkCap)
		c.Apb.Write32(RCLinkCap, v&^pcie.LinkCapAspmL0s)
	}

	c.atr = atr.Table{W: c.Apb, AxiBase: c.AxiBase, ApbBase: c.ApbBase}
	if err = c.atr.Init(c.Windows); err != nil {
		return
	}

	log.Print("info", c, ": link up (bus ", c.RootBus, ")")
	return c.RootBus, nil
}

// Remove powers off and releases every lane, drops endpoint presence and
// disables the supplies New enabled. It runs every step and returns the
// first error.
func (c *Controller) Remove() (err error) {
	keep := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	keep(c.eachPhy("power off", platform.Phy.PowerOff))
	keep(c.eachPhy("exit", platform.Phy.Exit))
	keep(c.endpoint(false))
	for _, r := range c.supplies {
		keep(r.SetEnable(false))
	}
	c.linkUp = false
	if err != nil {
		log.Print("err", c, ": remove: ", err)
	}
	return
}

// Status summarizes the last Probe.
type Status struct {
	Bus    uint8
	LinkUp bool
	Lanes  uint32
	Slots  int
	Err    error
	// Root port capabilities, decoded once the link is up.
	Port    pcie.Flags
	LinkCap pcie.LinkCapabilities
}

func (c *Controller) Status() Status {
	s := Status{
		Bus:    c.RootBus,
		LinkUp: c.linkUp,
		Lanes:  c.Lanes,
		Slots:  len(c.atr.Outbound()),
		Err:    c.err,
	}
	if c.linkUp {
		s.Port = pcie.DecodeFlags(uint16(c.Apb.Read32(RCPcieCap) >> 16))
		s.LinkCap = pcie.DecodeLinkCapabilities(c.Apb.Read32(RCLinkCap))
	}
	return s
}
