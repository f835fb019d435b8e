// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pcierc_test

import (
	"errors"
	"testing"

	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/internal/test"
)

func TestTaxonomy(t *testing.T) {
	assert := test.Assert{TB: t}

	err := pcierc.Timeout("pll relock")
	assert.Error(err, pcierc.ErrHardwareTimeout)
	assert.Error(err, "pll relock: hardware timeout")
	var te *pcierc.TimeoutError
	assert.True(errors.As(err, &te))
	assert.Equal(te.Wait, "pll relock")

	err = &pcierc.MappingError{Index: 2, Reason: "not 1MiB aligned"}
	assert.Error(err, pcierc.ErrAddressMapping)
	assert.Error(err,
		"window 2: not 1MiB aligned: address mapping violation")

	err = pcierc.Configuration("reset %q", "pipe")
	assert.Error(err, pcierc.ErrConfiguration)
	assert.Error(err, `reset "pipe": configuration error`)
	assert.False(errors.Is(err, pcierc.ErrResourceUnavailable))
}
