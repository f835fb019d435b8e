// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package regs provides 32 bit register windows and bounded polling of
// their contents.
package regs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Window is a block of 32 bit registers addressed by byte offset from the
// window base.
type Window interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, v uint32)
}

// HiwordUpdate returns a write value for registers whose upper 16 bits are
// a write-enable mask for the lower 16; only bits set in mask change.
func HiwordUpdate(mask, val uint32) uint32 {
	return (mask&0xffff)<<16 | val&mask&0xffff
}

// HiwordBit sets bit (< 16) of a write-enable masked register.
func HiwordBit(bit uint) uint32 { return HiwordUpdate(1<<bit, 1<<bit) }

// HiwordField writes val into the width bit field at shift.
func HiwordField(val, width, shift uint) uint32 {
	mask := uint32(1)<<width - 1
	return HiwordUpdate(mask<<shift, (uint32(val)&mask)<<shift)
}

// Mem is a sparse, memory backed Window; unwritten registers read as 0.
type Mem struct {
	mutex sync.Mutex
	m     map[uint32]uint32
}

func NewMem() *Mem { return &Mem{m: make(map[uint32]uint32)} }

func (r *Mem) Read32(o uint32) uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.m[o]
}

func (r *Mem) Write32(o uint32, v uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.m == nil {
		r.m = make(map[uint32]uint32)
	}
	r.m[o] = v
}

// Offsets returns the written offsets in ascending order.
func (r *Mem) Offsets() []uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	os := make([]uint32, 0, len(r.m))
	for o := range r.m {
		os = append(os, o)
	}
	sort.Slice(os, func(i, j int) bool { return os[i] < os[j] })
	return os
}

func (r *Mem) String() string {
	var sb strings.Builder
	for _, o := range r.Offsets() {
		fmt.Fprintf(&sb, "0x%08x: 0x%08x\n", o, r.Read32(o))
	}
	return sb.String()
}

// Hiword wraps a Window so that writes to the listed offsets honor the
// upper 16 bit write-enable mask the way Rockchip GRF and CRU registers do.
type Hiword struct {
	Window
	masked map[uint32]bool
}

func NewHiword(w Window, offsets ...uint32) *Hiword {
	h := &Hiword{Window: w, masked: make(map[uint32]bool)}
	for _, o := range offsets {
		h.masked[o] = true
	}
	return h
}

func (h *Hiword) Write32(o uint32, v uint32) {
	if !h.masked[o] {
		h.Window.Write32(o, v)
		return
	}
	mask := v >> 16
	old := h.Window.Read32(o) & 0xffff
	h.Window.Write32(o, old&^mask|v&mask&0xffff)
}

// Offset returns a Window shifted by base within w.
func Offset(w Window, base uint32) Window { return &offset{w, base} }

type offset struct {
	w    Window
	base uint32
}

func (r *offset) Read32(o uint32) uint32     { return r.w.Read32(r.base + o) }
func (r *offset) Write32(o uint32, v uint32) { r.w.Write32(r.base+o, v) }
