// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rccmd

import (
	"fmt"
	"io/ioutil"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/board"
	"github.com/platinasystems/pcierc/phy"
	"github.com/platinasystems/pcierc/platform"
	"github.com/platinasystems/pcierc/platform/cru"
	"github.com/platinasystems/pcierc/platform/sysfs"
	"github.com/platinasystems/pcierc/rc"
	"github.com/platinasystems/pcierc/regs"
)

const DefaultDtb = "/sys/firmware/fdt"

// Register window sizes. The apb window grows past ApbSize to reach the
// root bus configuration space.
const (
	ApbSize = 16 << 20
	// Region 0, the downstream configuration window.
	AxiCfgSize = 32 << 20
	GrfSize    = 64 << 10
	CruSize    = cru.RK3399CruWindowSz
)

// Machine assembles controllers from a loaded board.
type Machine struct {
	*board.Board
	// Map returns the register window at a physical base; nil maps
	// /dev/mem.
	Map func(base uint64, size int) (regs.Window, error)
	// Pin returns the named gpio output; nil looks it up in sysfs.
	Pin func(name string) (platform.Line, error)

	cru  *cru.Unit
	grfs map[uint64]regs.Window
}

// Load reads and parses a device tree blob file.
func Load(fn string) (*Machine, error) {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	brd, err := board.Load(b)
	if err != nil {
		return nil, err
	}
	return &Machine{Board: brd}, nil
}

func (m *Machine) mmap(base uint64, size int) (regs.Window, error) {
	if m.Map != nil {
		return m.Map(base, size)
	}
	w, err := regs.Map(base, size)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (m *Machine) pin(name string) (platform.Line, error) {
	if m.Pin != nil {
		return m.Pin(name)
	}
	l, err := sysfs.Lookup(name)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (m *Machine) unit() (*cru.Unit, error) {
	if m.cru != nil {
		return m.cru, nil
	}
	if m.CruBase == 0 {
		return nil, pcierc.Configuration("no %s", board.CruCompatible)
	}
	w, err := m.mmap(m.CruBase, CruSize)
	if err != nil {
		return nil, err
	}
	m.cru = cru.RK3399(w)
	return m.cru, nil
}

func (m *Machine) grf(base uint64) (regs.Window, error) {
	if w, found := m.grfs[base]; found {
		return w, nil
	}
	w, err := m.mmap(base, GrfSize)
	if err != nil {
		return nil, err
	}
	if m.grfs == nil {
		m.grfs = make(map[uint64]regs.Window)
	}
	m.grfs[base] = w
	return w, nil
}

// Controller returns the i'th root complex of the board, bound to its
// resets, gpios, supplies and PHY lanes but not yet probed.
func (m *Machine) Controller(i int) (*rc.Controller, error) {
	if i < 0 || i >= len(m.Controllers) {
		return nil, fmt.Errorf("pcie %d: %w", i, platform.ErrNotFound)
	}
	bc := m.Controllers[i]
	u, err := m.unit()
	if err != nil {
		return nil, err
	}
	p := &platform.Board{
		Resets:     make(map[string]platform.ResetLine),
		Regulators: make(map[string]platform.Regulator),
		Lines:      make(map[string]platform.Line),
		Phys:       make(map[string]platform.Phy),
	}
	for name, id := range bc.Resets {
		p.Resets[name] = u.Reset(uint(id))
	}

	ep, err := m.pin(bc.EndpointPin)
	if err != nil {
		return nil, err
	}
	if bc.EndpointActiveLow {
		ep = sysfs.ActiveLow{Line: ep}
	}
	p.Lines[rc.DefaultEndpointLine] = ep

	for name, s := range bc.Regulators {
		l, err := m.pin(s.Pin)
		if err != nil {
			// left out, so unavailable to the controller
			log.Print("warn", bc.Name, ": ", name, ": ", err)
			continue
		}
		p.Regulators[name] = &sysfs.Regulator{
			Line:      l,
			ActiveLow: s.ActiveLow,
		}
	}

	if err = m.bindPhy(bc, u, p); err != nil {
		return nil, err
	}

	apb, err := m.mmap(bc.ApbBase, apbSize(bc.RootBus))
	if err != nil {
		return nil, err
	}
	axi, err := m.mmap(bc.AxiBase, AxiCfgSize)
	if err != nil {
		return nil, err
	}
	return rc.New(bc.Config, p, apb, axi)
}

// apbSize covers the client registers and the root bus configuration
// space at rc.RCConfigBase + bus<<20.
func apbSize(root uint8) int {
	n := int(rc.RCConfigBase) + (int(root)+1)<<20
	if n < ApbSize {
		return ApbSize
	}
	return n
}

// bindPhy creates the PHY lanes and names them the way the controller
// asks for them.
func (m *Machine) bindPhy(bc *board.Controller, u *cru.Unit,
	p *platform.Board) error {
	v, found := phy.Variants[bc.Phy.Compatible]
	if !found {
		return pcierc.Configuration("phy %q unsupported",
			bc.Phy.Compatible)
	}
	grf, err := m.grf(bc.GrfBase)
	if err != nil {
		return err
	}
	refclk, err := u.Clock(uint(bc.RefClk))
	if err != nil {
		return pcierc.Configuration("refclk: %v", err)
	}
	lanes, err := phy.Bind(&platform.Board{
		Clocks: map[string]platform.Clock{"refclk": refclk},
		Resets: map[string]platform.ResetLine{
			"phy": u.Reset(uint(bc.Phy.Reset)),
		},
	}, grf, v, bc.Phy.Cells)
	if err != nil {
		return err
	}
	for slot, name := range bc.Phys {
		if name != "" && slot < len(lanes) {
			p.Phys[name] = lanes[slot]
		}
	}
	return nil
}
