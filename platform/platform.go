// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package platform defines the reset, clock, regulator, GPIO and PHY
// capabilities a controller acquires by name.
package platform

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type ResetLine interface {
	Assert() error
	Deassert() error
}

type Clock interface {
	Enable() error
	Disable() error
}

type Regulator interface {
	SetEnable(on bool) error
}

// Line is a GPIO output.
type Line interface {
	SetValue(high bool) error
}

// Phy is one lane of a PCIe PHY.
type Phy interface {
	Init() error
	PowerOn() error
	PowerOff() error
	Exit() error
}

// Provider hands out capabilities by their board name.
type Provider interface {
	Reset(name string) (ResetLine, error)
	Clock(name string) (Clock, error)
	Regulator(name string) (Regulator, error)
	Line(name string) (Line, error)
	Phy(name string) (Phy, error)
}

// Board is a Provider backed by name tables.
type Board struct {
	Resets     map[string]ResetLine
	Clocks     map[string]Clock
	Regulators map[string]Regulator
	Lines      map[string]Line
	Phys       map[string]Phy
}

func notFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}

func (b *Board) Reset(name string) (ResetLine, error) {
	if v, found := b.Resets[name]; found && v != nil {
		return v, nil
	}
	return nil, notFound("reset", name)
}

func (b *Board) Clock(name string) (Clock, error) {
	if v, found := b.Clocks[name]; found && v != nil {
		return v, nil
	}
	return nil, notFound("clock", name)
}

func (b *Board) Regulator(name string) (Regulator, error) {
	if v, found := b.Regulators[name]; found && v != nil {
		return v, nil
	}
	return nil, notFound("regulator", name)
}

func (b *Board) Line(name string) (Line, error) {
	if v, found := b.Lines[name]; found && v != nil {
		return v, nil
	}
	return nil, notFound("gpio", name)
}

func (b *Board) Phy(name string) (Phy, error) {
	if v, found := b.Phys[name]; found && v != nil {
		return v, nil
	}
	return nil, notFound("phy", name)
}
