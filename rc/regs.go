// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rc

import (
	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/regs"
)

// APB register offsets.
const (
	ClientConfig       = 0x000
	ClientBasicStatus1 = 0x048

	// Root port configuration space.
	RCConfigBase = 0x800000

	LMBase     = 0x900000
	LMVendorID = LMBase + 0x044
	LMRcBar    = LMBase + 0x300

	RCBase          = 0xa00000
	RCClassRevision = RCBase + pci.ClassRevisionReg

	// PCIe capability: header, flags in the upper half.
	RCPcieCap = RCBase + 0x0c0
	RCLinkCap = RCBase + 0x0cc
)

// ClientConfig fields; write-enable masked.
var (
	ClientLinkTrain = regs.HiwordBit(1)
	ClientARI       = regs.HiwordBit(3)
	// Clears the gen 2 select, so trains at 2.5GT/s.
	ClientGenSel1 = regs.HiwordUpdate(1<<7, 0)
)

// ClientLanes encodes a normalized lane count: 1, 2, 4 -> 0, 1, 2.
func ClientLanes(n uint32) uint32 {
	return regs.HiwordField(uint(n>>1&3), 2, 4)
}

// LMRcBar bits
const (
	RcBarPrefetchEnable = 1 << 19
	RcBarPrefetch64     = 1 << 20
)

const (
	linkStatusShift = 20
	linkStatusMask  = 3 << linkStatusShift
	linkStatusUp    = 3 << linkStatusShift
)

// LinkUp tests a ClientBasicStatus1 value.
func LinkUp(status uint32) bool {
	return status&linkStatusMask == linkStatusUp
}
