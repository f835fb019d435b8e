// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrInjected = errors.New("injected failure")

// Clock is a regs.Clock that only advances when slept on.
type Clock struct {
	mutex  sync.Mutex
	now    time.Time
	total  time.Duration
	Sleeps []time.Duration
	// Hook runs after each Sleep with the total time slept.
	Hook func(elapsed time.Duration)
}

func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.mutex.Lock()
	c.now = c.now.Add(d)
	c.total += d
	c.Sleeps = append(c.Sleeps, d)
	elapsed := c.total
	hook := c.Hook
	c.mutex.Unlock()
	if hook != nil {
		hook(elapsed)
	}
}

// Elapsed returns the total time slept.
func (c *Clock) Elapsed() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.total
}

// Recorder logs every capability call as "name verb" and fails the calls
// named in Fail.
type Recorder struct {
	mutex  sync.Mutex
	Events []string
	Fail   map[string]bool
	// State of each named capability: reset asserted, clock or supply
	// enabled, line high.
	State map[string]bool
}

func (r *Recorder) record(name, verb string, state bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ev := name + " " + verb
	r.Events = append(r.Events, ev)
	if r.Fail[ev] {
		return fmt.Errorf("%s: %w", ev, ErrInjected)
	}
	if r.State == nil {
		r.State = make(map[string]bool)
	}
	r.State[name] = state
	return nil
}

// Is reports the recorded state of the named capability.
func (r *Recorder) Is(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.State[name]
}

// Index returns the position of the first matching event or -1.
func (r *Recorder) Index(ev string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, s := range r.Events {
		if s == ev {
			return i
		}
	}
	return -1
}

func (r *Recorder) String() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return strings.Join(r.Events, "\n")
}

func (r *Recorder) Reset(name string) *Reset         { return &Reset{r, name} }
func (r *Recorder) Clock(name string) *Gate          { return &Gate{r, name} }
func (r *Recorder) Regulator(name string) *Regulator { return &Regulator{r, name} }
func (r *Recorder) Line(name string) *Line           { return &Line{r, name} }

type Reset struct {
	r    *Recorder
	Name string
}

func (x *Reset) Assert() error   { return x.r.record(x.Name, "assert", true) }
func (x *Reset) Deassert() error { return x.r.record(x.Name, "deassert", false) }

type Gate struct {
	r    *Recorder
	Name string
}

func (x *Gate) Enable() error  { return x.r.record(x.Name, "enable", true) }
func (x *Gate) Disable() error { return x.r.record(x.Name, "disable", false) }

type Regulator struct {
	r    *Recorder
	Name string
}

func (x *Regulator) SetEnable(on bool) error {
	verb := "off"
	if on {
		verb = "on"
	}
	return x.r.record(x.Name, verb, on)
}

type Line struct {
	r    *Recorder
	Name string
}

func (x *Line) SetValue(high bool) error {
	verb := "low"
	if high {
		verb = "high"
	}
	return x.r.record(x.Name, verb, high)
}

func (r *Recorder) Phy(name string) *Phy { return &Phy{r, name} }

// Phy records lane transitions; its state is powered on.
type Phy struct {
	r    *Recorder
	Name string
}

func (x *Phy) Init() error     { return x.r.record(x.Name, "init", false) }
func (x *Phy) PowerOn() error  { return x.r.record(x.Name, "on", true) }
func (x *Phy) PowerOff() error { return x.r.record(x.Name, "off", false) }
func (x *Phy) Exit() error     { return x.r.record(x.Name, "exit", false) }

// Log appends a free form event, e.g. a register write.
func (r *Recorder) Log(format string, args ...interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Events = append(r.Events, fmt.Sprintf(format, args...))
}

// Clear drops the recorded events but keeps state.
func (r *Recorder) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Events = nil
}
