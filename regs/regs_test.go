// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regs_test

import (
	"testing"
	"time"

	"github.com/platinasystems/pcierc/internal/test"
	"github.com/platinasystems/pcierc/regs"
)

func TestHiwordUpdate(t *testing.T) {
	assert := test.Assert{TB: t}
	assert.Hex(regs.HiwordBit(1), 0x00020002)
	assert.Hex(regs.HiwordUpdate(0x80, 0), 0x00800000)
	assert.Hex(regs.HiwordField(2, 2, 4), 0x00300020)
	assert.Hex(regs.HiwordField(0x1f, 4, 7), 0x07800780)
}

func TestHiwordWindow(t *testing.T) {
	assert := test.Assert{TB: t}
	m := regs.NewMem()
	h := regs.NewHiword(m, 0x10)

	h.Write32(0x10, regs.HiwordUpdate(0xff, 0x5a))
	assert.Hex(h.Read32(0x10), 0x5a)
	h.Write32(0x10, regs.HiwordBit(0))
	assert.Hex(h.Read32(0x10), 0x5b)
	// no mask, no change
	h.Write32(0x10, 0xffff)
	assert.Hex(h.Read32(0x10), 0x5b)

	// unlisted offsets are plain
	h.Write32(0x14, 0xdeadbeef)
	assert.Hex(m.Read32(0x14), 0xdeadbeef)
}

func TestOffset(t *testing.T) {
	assert := test.Assert{TB: t}
	m := regs.NewMem()
	w := regs.Offset(m, 0x800000)
	w.Write32(8, 0x06040000)
	assert.Hex(m.Read32(0x800008), 0x06040000)
	assert.Equal(m.Offsets(), []uint32{0x800008})
}

// counter returns v after n reads.
type counter struct {
	n, reads int
	v        uint32
}

func (c *counter) Read32(uint32) uint32 {
	c.reads++
	if c.reads > c.n {
		return c.v
	}
	return 0
}

func (c *counter) Write32(uint32, uint32) {}

func set(v uint32) bool { return v != 0 }

func TestPollImmediate(t *testing.T) {
	assert := test.Assert{TB: t}
	clock := &test.Clock{}
	w := &counter{v: 3}
	p := regs.Poll{Sleep: 20 * time.Microsecond, Timeout: time.Millisecond}
	v, err := p.Until(clock, w, 0, set)
	assert.Nil(err)
	assert.Hex(v, 3)
	assert.Equal(w.reads, 1)
	assert.Equal(len(clock.Sleeps), 0)
}

func TestPollEventually(t *testing.T) {
	assert := test.Assert{TB: t}
	clock := &test.Clock{}
	w := &counter{n: 5, v: 1}
	p := regs.Poll{Sleep: 20 * time.Microsecond, Timeout: time.Millisecond}
	_, err := p.Until(clock, w, 0, set)
	assert.Nil(err)
	assert.Equal(w.reads, 6)
	assert.Equal(clock.Elapsed(), 5*20*time.Microsecond)
}

func TestPollTimeout(t *testing.T) {
	for _, p := range []regs.Poll{
		{Sleep: 20 * time.Microsecond, Timeout: 500 * time.Millisecond},
		{Sleep: 20 * time.Millisecond, Timeout: 50 * time.Microsecond},
		{Sleep: 0, Timeout: 0},
		{Sleep: time.Millisecond, Timeout: 100 * time.Millisecond, Factor: 2},
	} {
		assert := test.Assert{TB: t}
		clock := &test.Clock{}
		w := &counter{n: 1 << 30}
		_, err := p.Until(clock, w, 0, set)
		assert.Error(err, regs.ErrPollTimeout)
		assert.True(clock.Elapsed() >= p.Timeout)
		if p.Sleep > p.Timeout {
			// read, sleep, read past deadline, final read
			assert.Equal(w.reads, 3)
		}
	}
}

func TestPollFinalRead(t *testing.T) {
	assert := test.Assert{TB: t}
	clock := &test.Clock{}
	// ready on the read made after the deadline
	w := &counter{n: 2, v: 1}
	p := regs.Poll{Sleep: 20 * time.Millisecond, Timeout: 50 * time.Microsecond}
	_, err := p.Until(clock, w, 0, set)
	assert.Nil(err)
	assert.Equal(w.reads, 3)
}

func TestPollGrowingDelay(t *testing.T) {
	assert := test.Assert{TB: t}
	clock := &test.Clock{}
	w := &counter{n: 4, v: 1}
	p := regs.Poll{Sleep: time.Millisecond, Timeout: time.Second, Factor: 2}
	_, err := p.Until(clock, w, 0, set)
	assert.Nil(err)
	assert.Equal(clock.Sleeps, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
	})
}
