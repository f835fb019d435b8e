// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regs

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

const DevMemFile = "/dev/mem"

// DevMem is a Window onto physical memory mapped through /dev/mem.
type DevMem struct {
	Base uint64
	b    []byte
}

// Map maps size bytes of physical address space at base; both must be page
// aligned.
func Map(base uint64, size int) (*DevMem, error) {
	f, err := os.OpenFile(DevMemFile, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := syscall.Mmap(int(f.Fd()), int64(base), size,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap 0x%x+0x%x: %v", base, size, err)
	}
	return &DevMem{Base: base, b: b}, nil
}

func (m *DevMem) addr(o uint32) *uint32 {
	if int(o)+4 > len(m.b) || o&3 != 0 {
		panic(fmt.Errorf("0x%x+0x%x: out of window", m.Base, o))
	}
	return (*uint32)(unsafe.Pointer(&m.b[o]))
}

// Memory mapped loads and stores must not be elided or merged, so go
// through sync/atomic rather than plain dereference.
func (m *DevMem) Read32(o uint32) uint32     { return atomic.LoadUint32(m.addr(o)) }
func (m *DevMem) Write32(o uint32, v uint32) { atomic.StoreUint32(m.addr(o), v) }

func (m *DevMem) Close() error {
	if m.b == nil {
		return nil
	}
	err := syscall.Munmap(m.b)
	m.b = nil
	return err
}
