// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regs

import (
	"errors"
	"time"

	"github.com/jpillora/backoff"
)

var ErrPollTimeout = errors.New("poll timeout")

// Clock is the time source for polls and settle delays.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time         { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock sleeps for real.
var SystemClock Clock = systemClock{}

// Poll bounds a register poll. Sleep is the per-iteration delay and
// Timeout the overall bound; neither needs to be smaller than the other.
// Factor above 1 grows the delay each iteration.
type Poll struct {
	Sleep   time.Duration
	Timeout time.Duration
	Factor  float64
}

// Until reads offset o of w until cond is true. Once the deadline is
// reached, one last read is made before giving up with ErrPollTimeout; a
// zero Timeout therefore reads at most twice. The last value read is
// returned either way.
func (p Poll) Until(c Clock, w Window, o uint32,
	cond func(v uint32) bool) (v uint32, err error) {
	if c == nil {
		c = SystemClock
	}
	b := p.backoff()
	deadline := c.Now().Add(p.Timeout)
	for {
		v = w.Read32(o)
		if cond(v) {
			return
		}
		if !c.Now().Before(deadline) {
			v = w.Read32(o)
			if !cond(v) {
				err = ErrPollTimeout
			}
			return
		}
		if b != nil {
			c.Sleep(b.Duration())
		}
	}
}

func (p Poll) backoff() *backoff.Backoff {
	if p.Sleep <= 0 {
		return nil
	}
	b := &backoff.Backoff{
		Min:    p.Sleep,
		Max:    p.Sleep,
		Factor: 1,
	}
	if p.Factor > 1 {
		b.Factor = p.Factor
		b.Max = p.Timeout
		if b.Max < b.Min {
			b.Max = b.Min
		}
	}
	return b
}
