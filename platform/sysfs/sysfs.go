// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package sysfs provides GPIO lines and GPIO switched supplies through
// /sys/class/gpio.
package sysfs

import (
	"fmt"

	"github.com/platinasystems/gpio"
	"github.com/platinasystems/pcierc/platform"
)

// Line is a GPIO output pin.
type Line struct {
	Name string
	Pin  gpio.Pin
}

// Lookup finds the named pin in the gpio pin map gathered from the device
// tree and sets its direction.
func Lookup(name string) (*Line, error) {
	p, found := gpio.Pins[name]
	if !found {
		return nil, fmt.Errorf("gpio %q: %w", name, platform.ErrNotFound)
	}
	if err := p.SetDirection(); err != nil {
		return nil, fmt.Errorf("gpio %q: %v", name, err)
	}
	return &Line{Name: name, Pin: p}, nil
}

func (l *Line) SetValue(high bool) error {
	if err := l.Pin.SetValue(high); err != nil {
		return fmt.Errorf("gpio %q: %v", l.Name, err)
	}
	return nil
}

// ActiveLow inverts a line.
type ActiveLow struct {
	platform.Line
}

func (l ActiveLow) SetValue(high bool) error { return l.Line.SetValue(!high) }

// Regulator is a fixed supply switched by a GPIO enable pin.
type Regulator struct {
	platform.Line
	ActiveLow bool
}

func (r *Regulator) SetEnable(on bool) error {
	return r.Line.SetValue(on != r.ActiveLow)
}
