// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pcie

import "testing"

func TestDecodeLinkCapabilities(t *testing.T) {
	c := DecodeLinkCapabilities(0x01000000 | 0x3<<10 | 4<<4 | 1)
	if c.MaxSpeed != 1 || c.MaxWidth != 4 || !c.L0s || !c.L1 || c.Port != 1 {
		t.Errorf("got %+v", c)
	}
	if s := c.String(); s != "x4 2.5GT/s L0s L1" {
		t.Error(s)
	}
	c = DecodeLinkCapabilities((0x01000000 | 0x3<<10 | 4<<4 | 1) &^ LinkCapAspmL0s)
	if c.L0s || !c.L1 {
		t.Errorf("got %+v", c)
	}
}

func TestDecodeFlags(t *testing.T) {
	f := DecodeFlags(2 | Type_root_port<<4 | 1<<8)
	if f.Version != 2 || f.Type != Type_root_port || !f.SlotImplemented {
		t.Errorf("got %+v", f)
	}
	if s := f.Type.String(); s != "root port" {
		t.Error(s)
	}
	if s := Type(3).String(); s != "type 3" {
		t.Error(s)
	}
}
