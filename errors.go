// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pcierc brings up a Rockchip PCIe root complex and its lane PHY.
//
// The work is split across sub-packages: regs (register windows and
// polling), phy (lane power sequencing), atr (address translation),
// cfgspace (configuration space access) and rc (the probe sequence).
// This package holds the error taxonomy they share.
package pcierc

import (
	"errors"
	"fmt"
)

var (
	// A mandatory address, reset line or handle is missing.
	ErrConfiguration = errors.New("configuration error")
	// An optional supply could not be found or enabled.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// A bounded poll expired.
	ErrHardwareTimeout = errors.New("hardware timeout")
	// A resource window can't be expressed by the translation table.
	ErrAddressMapping = errors.New("address mapping violation")
)

// TimeoutError tags a HardwareTimeout with the wait that expired, e.g.
// "pll lock" or "link training".
type TimeoutError struct {
	Wait string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Wait, ErrHardwareTimeout)
}

func (e *TimeoutError) Unwrap() error { return ErrHardwareTimeout }

// Timeout returns a TimeoutError for the named wait.
func Timeout(wait string) error { return &TimeoutError{Wait: wait} }

// MappingError reports the resource window that failed validation.
type MappingError struct {
	Index  int
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("window %d: %s: %v", e.Index, e.Reason,
		ErrAddressMapping)
}

func (e *MappingError) Unwrap() error { return ErrAddressMapping }

// Configuration wraps ErrConfiguration with what was missing.
func Configuration(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...),
		ErrConfiguration)
}
