// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package board reads root complex configuration from a flattened device
// tree.
package board

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/atr"
	"github.com/platinasystems/pcierc/rc"
)

const (
	Compatible    = "rockchip,rk3399-pcie"
	CruCompatible = "rockchip,rk3399-cru"
)

// Supply is a regulator switched by a gpio pin.
type Supply struct {
	Pin       string
	ActiveLow bool
}

// Phy is the PHY node a controller references.
type Phy struct {
	Compatible string
	Cells      uint32
	// Base of the syscon holding the PHY control words.
	GrfBase uint64
	// CRU specifier ids of the "refclk" clock and "phy" reset.
	RefClk, Reset uint32
}

// Controller is one root complex node.
type Controller struct {
	Name string
	rc.Config
	// CRU specifier ids by reset name.
	Resets            map[string]uint32
	EndpointPin       string
	EndpointActiveLow bool
	// Resolved supplies by name, e.g. "vpcie3v3".
	Regulators map[string]Supply
	Phy
}

type Board struct {
	CruBase     uint64
	Controllers []*Controller
}

type tree struct {
	*fdt.Tree
	parents  map[*fdt.Node]*fdt.Node
	phandles map[uint32]*fdt.Node
}

// Load parses a device tree blob. The gpio pin map is rebuilt as a side
// effect so that endpoint and supply pins can be looked up by name.
func Load(b []byte) (*Board, error) {
	t := &tree{
		Tree:     &fdt.Tree{IsLittleEndian: false},
		parents:  make(map[*fdt.Node]*fdt.Node),
		phandles: make(map[uint32]*fdt.Node),
	}
	if len(b) < 40 || binary.BigEndian.Uint32(b) != 0xd00dfeed {
		return nil, pcierc.Configuration("dtb: bad magic")
	}
	if err := t.Parse(b); err != nil {
		return nil, fmt.Errorf("dtb: %v", err)
	}
	if t.RootNode == nil {
		return nil, pcierc.Configuration("dtb: no root node")
	}
	t.index(t.RootNode)
	GatherPins(t.Tree)

	brd := &Board{}
	var mem []atr.Window
	var nodes []*fdt.Node
	t.walk(t.RootNode, func(n *fdt.Node) {
		switch {
		case t.str(n, "device_type") == "memory":
			mem = append(mem, t.memory(n)...)
		case t.compatible(n, CruCompatible):
			if regs := t.reg(n); len(regs) > 0 {
				brd.CruBase = regs[0][0]
			}
		case t.compatible(n, Compatible):
			nodes = append(nodes, n)
		}
	})
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		c, err := t.controller(n)
		if err != nil {
			log.Print("err", n.Name, ": ", err)
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		c.Windows = append(append([]atr.Window{}, mem...), c.Windows...)
		brd.Controllers = append(brd.Controllers, c)
	}
	return brd, nil
}

func (t *tree) index(n *fdt.Node) {
	for _, p := range []string{"phandle", "linux,phandle"} {
		if v, found := n.Properties[p]; found && len(v) == 4 {
			t.phandles[t.PropUint32(v)] = n
		}
	}
	for _, c := range n.Children {
		t.parents[c] = n
		t.index(c)
	}
}

// walk visits nodes in name order.
func (t *tree) walk(n *fdt.Node, f func(*fdt.Node)) {
	f(n)
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.walk(n.Children[name], f)
	}
}

func (t *tree) strs(n *fdt.Node, prop string) []string {
	v, found := n.Properties[prop]
	if !found || len(v) == 0 {
		return nil
	}
	return t.PropStringSlice([]byte(strings.TrimSuffix(string(v), "\x00")))
}

func (t *tree) str(n *fdt.Node, prop string) string {
	if s := t.strs(n, prop); len(s) > 0 {
		return s[0]
	}
	return ""
}

func (t *tree) compatible(n *fdt.Node, s string) bool {
	for _, c := range t.strs(n, "compatible") {
		if c == s {
			return true
		}
	}
	return false
}

func (t *tree) u32s(n *fdt.Node, prop string) []uint32 {
	return t.PropUint32Slice(n.Properties[prop])
}

func (t *tree) u32(n *fdt.Node, prop string, def uint32) uint32 {
	if v := t.u32s(n, prop); len(v) > 0 {
		return v[0]
	}
	return def
}

func (t *tree) has(n *fdt.Node, prop string) bool {
	_, found := n.Properties[prop]
	return found
}

// cells returns the #address-cells and #size-cells n gives its children.
func (t *tree) cells(n *fdt.Node) (ac, sc int) {
	if n == nil {
		return 2, 1
	}
	return int(t.u32(n, "#address-cells", 2)), int(t.u32(n, "#size-cells", 1))
}

func join(cells []uint32) (v uint64) {
	for _, c := range cells {
		v = v<<32 | uint64(c)
	}
	return
}

// reg decodes n's reg property into address, size pairs.
func (t *tree) reg(n *fdt.Node) (regs [][2]uint64) {
	ac, sc := t.cells(t.parents[n])
	v := t.u32s(n, "reg")
	for len(v) >= ac+sc && ac+sc > 0 {
		regs = append(regs, [2]uint64{join(v[:ac]), join(v[ac : ac+sc])})
		v = v[ac+sc:]
	}
	return
}

func (t *tree) memory(n *fdt.Node) (ws []atr.Window) {
	for _, r := range t.reg(n) {
		ws = append(ws, atr.Window{
			BusStart:  r[0],
			PhysStart: r[0],
			Size:      r[1],
			Flags:     atr.SysMemory,
		})
	}
	return
}

type specifier struct {
	node *fdt.Node
	args []uint32
}

// specifiers decodes a phandle list whose argument count is given by the
// provider's cellsProp, e.g. "#gpio-cells".
func (t *tree) specifiers(n *fdt.Node, prop, cellsProp string) ([]specifier,
	error) {
	var ss []specifier
	v := t.u32s(n, prop)
	for len(v) > 0 {
		p, found := t.phandles[v[0]]
		if !found {
			return nil, pcierc.Configuration("%s: no phandle %d",
				prop, v[0])
		}
		nargs := int(t.u32(p, cellsProp, 0))
		if len(v) < 1+nargs {
			return nil, pcierc.Configuration("%s: short specifier",
				prop)
		}
		ss = append(ss, specifier{p, v[1 : 1+nargs]})
		v = v[1+nargs:]
	}
	return ss, nil
}

// named pairs each specifier with its name from namesProp.
func (t *tree) named(n *fdt.Node, prop, namesProp,
	cellsProp string) (map[string]specifier, error) {
	ss, err := t.specifiers(n, prop, cellsProp)
	if err != nil {
		return nil, err
	}
	m := make(map[string]specifier)
	for i, name := range t.strs(n, namesProp) {
		if i < len(ss) {
			m[name] = ss[i]
		}
	}
	return m, nil
}

func (t *tree) controller(n *fdt.Node) (*Controller, error) {
	c := &Controller{
		Name:       n.Name,
		Resets:     make(map[string]uint32),
		Regulators: make(map[string]Supply),
	}

	regs := t.reg(n)
	for i, name := range t.strs(n, "reg-names") {
		if i >= len(regs) {
			break
		}
		switch name {
		case "axi-base":
			c.AxiBase = regs[i][0]
		case "apb-base":
			c.ApbBase = regs[i][0]
		}
	}
	if c.AxiBase == 0 {
		return nil, pcierc.Configuration("reg-names: no axi-base")
	}
	if c.ApbBase == 0 {
		return nil, pcierc.Configuration("reg-names: no apb-base")
	}

	c.Lanes = t.u32(n, "num-lanes", 1)
	c.RootBus = uint8(t.u32(n, "bus-range", 0))
	c.NoL0s = t.has(n, "aspm-no-l0s")

	resets, err := t.named(n, "resets", "reset-names", "#reset-cells")
	if err != nil {
		return nil, err
	}
	for name, s := range resets {
		if len(s.args) > 0 {
			c.Resets[name] = s.args[0]
		}
	}

	if err = t.endpoint(n, c); err != nil {
		return nil, err
	}
	for _, name := range rc.SupplyNames {
		if s, ok := t.supply(n, name); ok {
			c.Regulators[name] = s
		}
	}
	if err = t.phys(n, c); err != nil {
		return nil, err
	}
	if c.Windows, err = t.ranges(n); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *tree) pin(prop string, s specifier) (string, bool, error) {
	if len(s.args) == 0 {
		return "", false, pcierc.Configuration("%s: no pin", prop)
	}
	name, found := pinName(s.node, s.args[0])
	if !found {
		return "", false, pcierc.Configuration("%s: %s pin %d unnamed",
			prop, s.node.Name, s.args[0])
	}
	activeLow := len(s.args) > 1 && s.args[1]&1 != 0
	return name, activeLow, nil
}

func (t *tree) endpoint(n *fdt.Node, c *Controller) error {
	ss, err := t.specifiers(n, "ep-gpios", "#gpio-cells")
	if err != nil {
		return err
	}
	if len(ss) == 0 {
		return pcierc.Configuration("no ep-gpios")
	}
	c.EndpointPin, c.EndpointActiveLow, err = t.pin("ep-gpios", ss[0])
	return err
}

// supply resolves a fixed regulator's enable pin; any gap leaves the
// supply unresolved, which the controller treats as unavailable.
func (t *tree) supply(n *fdt.Node, name string) (Supply, bool) {
	ss, err := t.specifiers(n, name+"-supply", "#regulator-cells")
	if err != nil || len(ss) == 0 {
		return Supply{}, false
	}
	reg := ss[0].node
	for _, prop := range []string{"gpio", "gpios", "enable-gpios"} {
		gs, err := t.specifiers(reg, prop, "#gpio-cells")
		if err != nil || len(gs) == 0 {
			continue
		}
		pin, _, err := t.pin(prop, gs[0])
		if err != nil {
			log.Print("warn", name, ": ", err)
			return Supply{}, false
		}
		return Supply{
			Pin:       pin,
			ActiveLow: !t.has(reg, "enable-active-high"),
		}, true
	}
	return Supply{}, false
}

func (t *tree) phys(n *fdt.Node, c *Controller) error {
	ss, err := t.specifiers(n, "phys", "#phy-cells")
	if err != nil {
		return err
	}
	names := t.strs(n, "phy-names")
	for i, s := range ss {
		if i >= len(names) {
			break
		}
		slot := 0
		if len(s.args) > 0 {
			slot = int(s.args[0])
		}
		if slot >= len(c.Phys) {
			return pcierc.Configuration("phys: lane %d", slot)
		}
		c.Phys[slot] = names[i]
	}
	if len(ss) == 0 {
		return pcierc.Configuration("no phys")
	}

	p := ss[0].node
	c.Phy.Compatible = t.str(p, "compatible")
	c.Phy.Cells = t.u32(p, "#phy-cells", 0)
	if grf := t.parents[p]; grf != nil {
		if regs := t.reg(grf); len(regs) > 0 {
			c.GrfBase = regs[0][0]
		}
	}
	clocks, err := t.named(p, "clocks", "clock-names", "#clock-cells")
	if err != nil {
		return err
	}
	resets, err := t.named(p, "resets", "reset-names", "#reset-cells")
	if err != nil {
		return err
	}
	if s, found := clocks["refclk"]; found && len(s.args) > 0 {
		c.RefClk = s.args[0]
	}
	if s, found := resets["phy"]; found && len(s.args) > 0 {
		c.Phy.Reset = s.args[0]
	}
	return nil
}

// PCI address space codes in bits 25:24 of the first ranges cell.
const (
	spaceIO       = 1
	spaceMem32    = 2
	spaceMem64    = 3
	rangePrefetch = 1 << 30
)

func (t *tree) ranges(n *fdt.Node) (ws []atr.Window, err error) {
	pac, _ := t.cells(t.parents[n])
	_, sc := t.cells(n)
	const cac = 3
	v := t.u32s(n, "ranges")
	for len(v) >= cac+pac+sc {
		hi := v[0]
		w := atr.Window{
			BusStart:  join(v[1:cac]),
			PhysStart: join(v[cac : cac+pac]),
			Size:      join(v[cac+pac : cac+pac+sc]),
		}
		switch hi >> 24 & 3 {
		case spaceIO:
			w.Flags = atr.IO
		case spaceMem32, spaceMem64:
			w.Flags = atr.Memory
			if hi&rangePrefetch != 0 {
				w.Flags |= atr.Prefetch
			}
		default:
			return nil, pcierc.Configuration("ranges: space 0x%x", hi)
		}
		ws = append(ws, w)
		v = v[cac+pac+sc:]
	}
	return
}
