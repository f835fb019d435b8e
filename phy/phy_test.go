// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package phy

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/internal/test"
	"github.com/platinasystems/pcierc/platform"
	"github.com/platinasystems/pcierc/regs"
)

// grf models the three PHY words: conf and laneoff are write-enable
// masked, status comes from the test.
type grf struct {
	*regs.Hiword
	confWrites []uint32
	status     uint32
	// onConf runs after each conf write with the write count.
	onConf func(n int)
}

func newGrf() *grf {
	g := &grf{Hiword: regs.NewHiword(regs.NewMem(), RK3399.Conf,
		RK3399.LaneOff)}
	// hardware reset leaves every lane electrically idle
	g.Hiword.Write32(RK3399.LaneOff, regs.HiwordUpdate(0x78, 0x78))
	return g
}

func (g *grf) Read32(o uint32) uint32 {
	if o == RK3399.Status {
		return g.status
	}
	return g.Hiword.Read32(o)
}

func (g *grf) Write32(o uint32, v uint32) {
	g.Hiword.Write32(o, v)
	if o == RK3399.Conf {
		g.confWrites = append(g.confWrites, v)
		if g.onConf != nil {
			g.onConf(len(g.confWrites))
		}
	}
}

type fixture struct {
	rec   *test.Recorder
	clock *test.Clock
	grf   *grf
	lane  *Lane
}

func newFixture(index uint) *fixture {
	f := &fixture{
		rec:   &test.Recorder{},
		clock: &test.Clock{},
		grf:   newGrf(),
	}
	f.lane = &Lane{
		Index:   index,
		RefClk:  f.rec.Clock("refclk"),
		Reset:   f.rec.Reset("phy"),
		W:       f.grf,
		Variant: RK3399,
		Timing:  DefaultTiming,
		Clock:   f.clock,
	}
	return f
}

func (f *fixture) idle(i uint) bool {
	return f.grf.Read32(RK3399.LaneOff)&(1<<(IdleShift+i)) != 0
}

func TestInit(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	assert.Nil(f.lane.Init())
	assert.Equal(f.rec.Events, []string{"refclk enable", "phy assert"})
	assert.True(f.rec.Is("refclk"))
	assert.Equal(f.lane.State(), Idle)
}

func TestInitResetFailureDisablesClock(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	f.rec.Fail = map[string]bool{"phy assert": true}
	err := f.lane.Init()
	assert.Error(err, pcierc.ErrConfiguration)
	assert.Equal(f.rec.Events, []string{
		"refclk enable",
		"phy assert",
		"refclk disable",
	})
	assert.False(f.rec.Is("refclk"))
	assert.Equal(f.lane.State(), Uninitialized)
}

func TestInitClockFailure(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	f.rec.Fail = map[string]bool{"refclk enable": true}
	assert.Error(f.lane.Init(), pcierc.ErrConfiguration)
	assert.Equal(f.rec.Events, []string{"refclk enable"})
}

func TestPowerOn(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	f.grf.status = PllOutput
	assert.Nil(f.lane.Init())
	assert.Nil(f.lane.PowerOn())
	assert.Equal(f.lane.State(), PoweredOn)

	// reset re-armed; nothing deasserts it here
	assert.Equal(f.rec.Events, []string{
		"refclk enable",
		"phy assert",
		"phy assert",
	})
	assert.Equal(f.grf.confWrites, []uint32{
		0x007e0020, // select pll lock
		0x07fe0420, // clk test <- sepe rate
		0x00010001,
		0x00010000,
		0x07fe0424, // clk scc <- 100MHz
		0x00010001,
		0x00010000,
		0x007e0020, // select pll lock
	})
	assert.False(f.idle(0))
	assert.Equal(f.clock.Sleeps, []time.Duration{
		time.Microsecond,
		time.Microsecond,
		time.Microsecond,
		time.Microsecond,
	})
}

func TestPowerOnIdleBitPerLane(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(2)
	f.grf.status = PllOutput
	assert.Nil(f.lane.Init())
	assert.Nil(f.lane.PowerOn())
	assert.False(f.idle(2))
	assert.True(f.idle(0))
	assert.True(f.idle(1))
	assert.True(f.idle(3))
}

func TestPowerOnOffRoundTrip(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(1)
	f.grf.status = PllOutput
	assert.Nil(f.lane.Init())
	laneoff := f.grf.Read32(RK3399.LaneOff)
	reset := f.rec.Is("phy")

	assert.Nil(f.lane.PowerOn())
	assert.Nil(f.lane.PowerOff())

	assert.Hex(f.grf.Read32(RK3399.LaneOff), laneoff)
	assert.Equal(f.rec.Is("phy"), reset)
	assert.Equal(f.lane.State(), Off)
}

func TestPowerOnTimeouts(t *testing.T) {
	for _, x := range []struct {
		wait   string
		status func(confWrites int) uint32
	}{
		{"pll lock", func(int) uint32 { return PllLocked }},
		{"pll output", func(int) uint32 { return 0 }},
		{"pll relock", func(n int) uint32 {
			if n >= 8 {
				return PllOutput | PllLocked
			}
			return PllOutput
		}},
	} {
		t.Run(x.wait, func(t *testing.T) {
			assert := test.Assert{TB: t}
			f := newFixture(0)
			f.grf.status = x.status(0)
			f.grf.onConf = func(n int) { f.grf.status = x.status(n) }
			assert.Nil(f.lane.Init())

			err := f.lane.PowerOn()
			assert.Error(err, pcierc.ErrHardwareTimeout)
			var te *pcierc.TimeoutError
			assert.True(errors.As(err, &te))
			assert.Equal(te.Wait, x.wait)

			ev := f.rec.Events
			assert.Equal(ev[len(ev)-1], "phy assert")
			assert.True(f.rec.Is("phy"))
			assert.True(f.rec.Is("refclk"))
			assert.Equal(f.lane.State(), Off)
		})
	}
}

func TestPowerOnTimeoutResetFailure(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	assert.Nil(f.lane.Init())
	// the reset fails only once the PLL sequence is running
	f.grf.onConf = func(int) {
		f.rec.Fail = map[string]bool{"phy assert": true}
	}
	err := f.lane.PowerOn()
	assert.Error(err, pcierc.ErrHardwareTimeout)
	assert.Error(err, regexp.MustCompile(
		"pll output: hardware timeout; reassert reset: phy assert: "))
	assert.Equal(f.lane.State(), Off)
}

func TestPllPollOrderings(t *testing.T) {
	for _, pll := range []regs.Poll{
		{Sleep: 20 * time.Millisecond, Timeout: 50 * time.Microsecond},
		{Sleep: 20 * time.Microsecond, Timeout: 500 * time.Millisecond},
	} {
		assert := test.Assert{TB: t}

		f := newFixture(0)
		f.lane.Pll = pll
		f.grf.status = PllLocked
		assert.Nil(f.lane.Init())
		assert.Error(f.lane.PowerOn(), pcierc.ErrHardwareTimeout)
		assert.True(f.clock.Elapsed() >= pll.Timeout)

		// lock clears on the first sleep
		f = newFixture(0)
		f.lane.Pll = pll
		f.grf.status = PllLocked | PllOutput
		f.clock.Hook = func(time.Duration) { f.grf.status = PllOutput }
		assert.Nil(f.lane.Init())
		assert.Nil(f.lane.PowerOn())
	}
}

func TestExit(t *testing.T) {
	assert := test.Assert{TB: t}
	f := newFixture(0)
	assert.Nil(f.lane.Init())
	assert.Nil(f.lane.Exit())
	assert.False(f.rec.Is("refclk"))
	assert.Equal(f.lane.State(), Uninitialized)
}

func TestBind(t *testing.T) {
	assert := test.Assert{TB: t}
	rec := &test.Recorder{}
	p := &platform.Board{
		Clocks: map[string]platform.Clock{"refclk": rec.Clock("refclk")},
		Resets: map[string]platform.ResetLine{"phy": rec.Reset("phy")},
	}
	w := regs.NewMem()

	lanes, err := Bind(p, w, RK3399, 0)
	assert.Nil(err)
	assert.Equal(len(lanes), 1)

	lanes, err = Bind(p, w, RK3399, 1)
	assert.Nil(err)
	assert.Equal(len(lanes), MaxLanes)
	for i, l := range lanes {
		assert.Equal(l.Index, uint(i))
		assert.Equal(l.Variant, RK3399)
	}

	_, err = Bind(&platform.Board{Resets: p.Resets}, w, RK3399, 0)
	assert.Error(err, pcierc.ErrConfiguration)
	_, err = Bind(&platform.Board{Clocks: p.Clocks}, w, RK3399, 0)
	assert.Error(err, pcierc.ErrConfiguration)
}
