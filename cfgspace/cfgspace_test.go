// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package cfgspace

import (
	"testing"

	"github.com/platinasystems/pcierc/internal/test"
	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/regs"
)

func newProxy(root uint8) (*Proxy, *regs.Mem, *regs.Mem) {
	local, down := regs.NewMem(), regs.NewMem()
	return &Proxy{Local: local, Downstream: down, RootBus: root}, local, down
}

func TestDecode(t *testing.T) {
	assert := test.Assert{TB: t}
	p, _, _ := newProxy(2)
	for _, x := range []struct {
		a    pci.BusAddress
		reg  uint
		want Target
	}{
		{pci.BusAddress{Bus: 2}, 0x10, Target{Local, 0x200010}},
		{pci.BusAddress{Bus: 2, Fn: 1}, 0x3e, Target{Local, 0x20103c}},
		{pci.BusAddress{Bus: 3, Fn: 7}, 0x04, Target{Downstream, 0x307004}},
		{pci.BusAddress{Bus: 2, Device: 1}, 0, Target{Kind: Absent}},
		{pci.BusAddress{Bus: 3, Device: 31}, 0, Target{Kind: Absent}},
		{pci.BusAddress{Bus: 1}, 0, Target{Kind: Absent}},
		{pci.BusAddress{Bus: 4}, 0, Target{Kind: Absent}},
	} {
		got := p.Decode(x.a, x.reg)
		assert.Equal(got.Kind, x.want.Kind)
		if got.Kind != Absent {
			assert.Hex(got.Offset, x.want.Offset)
		}
	}
}

func TestReadLocal(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, _ := newProxy(0)
	local.Write32(0x08, 0x06040001)
	a := pci.BusAddress{}
	for _, x := range []struct {
		reg  uint
		s    pci.Size
		want uint32
	}{
		{0x08, pci.Size32, 0x06040001},
		{0x0a, pci.Size16, 0x0604},
		{0x08, pci.Size16, 0x0001},
		{0x0b, pci.Size8, 0x06},
		{0x09, pci.Size8, 0x00},
	} {
		v, err := p.ReadConfig(a, x.reg, x.s)
		assert.Nil(err)
		assert.Hex(v, x.want)
	}
}

func TestReadDownstream(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, down := newProxy(0)
	down.Write32(0x100000, 0x12345678)
	v, err := p.ReadConfig(pci.BusAddress{Bus: 1}, 0, pci.Size32)
	assert.Nil(err)
	assert.Hex(v, 0x12345678)
	assert.Equal(len(local.Offsets()), 0)
}

func TestAbsent(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, down := newProxy(0)
	for _, a := range []pci.BusAddress{
		{Bus: 0, Device: 1},
		{Bus: 1, Device: 2, Fn: 3},
		{Bus: 2},
	} {
		for s, want := range map[pci.Size]uint32{
			pci.Size8:  0xff,
			pci.Size16: 0xffff,
			pci.Size32: 0xffffffff,
		} {
			v, err := p.ReadConfig(a, 0, s)
			assert.Nil(err)
			assert.Hex(v, want)
			assert.Nil(p.WriteConfig(a, 0, 0, s))
		}
	}
	assert.Equal(len(local.Offsets()), 0)
	assert.Equal(len(down.Offsets()), 0)
}

func TestWriteMerge(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, down := newProxy(0)
	local.Write32(0x04, 0xaabbccdd)

	assert.Nil(p.WriteConfig(pci.BusAddress{}, 0x05, 0x11, pci.Size8))
	assert.Hex(local.Read32(0x04), 0xaabb11dd)
	assert.Nil(p.WriteConfig(pci.BusAddress{}, 0x06, 0x2233, pci.Size16))
	assert.Hex(local.Read32(0x04), 0x223311dd)
	// excess bits of v are dropped
	assert.Nil(p.WriteConfig(pci.BusAddress{}, 0x04, 0xfff0, pci.Size8))
	assert.Hex(local.Read32(0x04), 0x223311f0)

	assert.Nil(p.WriteConfig(pci.BusAddress{Bus: 1, Fn: 2}, 0x10,
		0xfe000000, pci.Size32))
	assert.Hex(down.Read32(0x102010), 0xfe000000)
}

func TestBadAccess(t *testing.T) {
	assert := test.Assert{TB: t}
	p, _, _ := newProxy(0)
	_, err := p.ReadConfig(pci.BusAddress{}, 0, 3)
	assert.Error(err, ErrAccess)
	_, err = p.ReadConfig(pci.BusAddress{}, 2, pci.Size32)
	assert.Error(err, ErrAccess)
	assert.Error(p.WriteConfig(pci.BusAddress{}, 1, 0, pci.Size16), ErrAccess)
	_, err = p.ReadConfig(pci.BusAddress{Device: 5}, 0, 3)
	assert.Error(err, ErrAccess)
}

func TestAbsentUnaligned(t *testing.T) {
	assert := test.Assert{TB: t}
	p, _, down := newProxy(0)
	down.Write32(0x500000, 0x12345678)
	v, err := p.ReadConfig(pci.BusAddress{Bus: 5}, 2, pci.Size32)
	assert.Nil(err)
	assert.Hex(v, 0xffffffff)
	v, err = p.ReadConfig(pci.BusAddress{Device: 5}, 1, pci.Size16)
	assert.Nil(err)
	assert.Hex(v, 0xffff)
	assert.Nil(p.WriteConfig(pci.BusAddress{Bus: 1, Device: 1}, 3, 0,
		pci.Size32))
}

func TestLastRootBus(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, down := newProxy(0xff)
	down.Write32(0, 0x12345678)
	local.Write32(0xff<<20, 0x01001d87)
	assert.Equal(p.Decode(pci.BusAddress{}, 0).Kind, Absent)
	v, err := p.ReadConfig(pci.BusAddress{}, 0, pci.Size32)
	assert.Nil(err)
	assert.Hex(v, 0xffffffff)
	fs, err := p.Scan()
	assert.Nil(err)
	assert.Equal(len(fs), 1)
	assert.Equal(fs[0].Addr.Bus, uint8(0xff))
}

func TestScan(t *testing.T) {
	assert := test.Assert{TB: t}
	p, local, down := newProxy(0)
	local.Write32(pci.VendorIDReg, 0x01001d87)
	local.Write32(pci.ClassRevisionReg, pci.Bridge_PCI.Word())
	local.Write32(0x0c, 1<<16)
	// multi-function endpoint with functions 0 and 2
	down.Write32(0x100000, 0x165f14e4)
	down.Write32(0x100008, pci.Network_Ethernet.Word())
	down.Write32(0x10000c, 0x80<<16)
	down.Write32(0x101000, 0xffffffff)
	down.Write32(0x102000, 0x165f14e4)
	for fn := uint32(3); fn < 8; fn++ {
		down.Write32(0x100000|fn<<12, 0xffffffff)
	}

	fs, err := p.Scan()
	assert.Nil(err)
	var got []string
	for _, f := range fs {
		got = append(got, f.String())
	}
	assert.Equal(got, []string{
		"0000:00:00.0 0x1d87:0x0100 pci bridge",
		"0000:01:00.0 0x14e4:0x165f ethernet",
		"0000:01:00.2 0x14e4:0x165f undefined",
	})
}
