// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package status

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/platinasystems/pcierc"
	"github.com/platinasystems/pcierc/cfgspace"
	"github.com/platinasystems/pcierc/internal/test"
	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/pcie"
	"github.com/platinasystems/pcierc/rc"
)

// conn is an in memory redis hash server.
type conn struct {
	hash    map[string]map[string]string
	pending []string
	sent    []string
	pub     []string
	err     error
}

func newConn() *conn { return &conn{hash: make(map[string]map[string]string)} }

func (c *conn) Close() error { return nil }
func (c *conn) Err() error   { return c.err }
func (c *conn) Flush() error { return c.err }

func (c *conn) Receive() (interface{}, error) {
	return nil, errors.New("not implemented")
}

func (c *conn) Send(cmd string, args ...interface{}) error {
	if c.err != nil {
		return c.err
	}
	c.pending = append(c.pending, fmt.Sprint(append([]interface{}{cmd},
		args...)...))
	c.exec(cmd, args...)
	return nil
}

func (c *conn) exec(cmd string, args ...interface{}) interface{} {
	switch cmd {
	case "HSET":
		key := args[0].(string)
		if c.hash[key] == nil {
			c.hash[key] = make(map[string]string)
		}
		c.hash[key][args[1].(string)] = args[2].(string)
		return int64(1)
	case "HGET":
		v, found := c.hash[args[0].(string)][args[1].(string)]
		if !found {
			return nil
		}
		return []byte(v)
	case "HKEYS":
		var keys []interface{}
		for k := range c.hash[args[0].(string)] {
			keys = append(keys, []byte(k))
		}
		return keys
	case "PUBLISH":
		c.pub = append(c.pub, args[1].(string))
		return int64(0)
	}
	return nil
}

func (c *conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if c.err != nil {
		return nil, c.err
	}
	if cmd == "" {
		c.sent = append(c.sent, c.pending...)
		c.pending = nil
		return nil, nil
	}
	return c.exec(cmd, args...), nil
}

func TestKey(t *testing.T) {
	assert := test.Assert{TB: t}
	assert.Equal(Key("pcie-0"), "pcie-0")
	assert.Equal(Key(pci.BusAddress{Bus: 1}), "[0000:01:00.0]")
	assert.Equal(Split("pcie-0.fn.[0000:01:00.0]"),
		[]string{"pcie-0", "fn", "0000:01:00.0"})
	assert.Equal(Split("pcie-0.link"), []string{"pcie-0", "link"})
}

func TestFields(t *testing.T) {
	assert := test.Assert{TB: t}
	fs := Fields("pcie-0", rc.Status{
		LinkUp: true,
		Lanes:  4,
		Slots:  31,
		Port: pcie.Flags{
			Version: 2,
			Type:    pcie.Type_root_port,
		},
		LinkCap: pcie.DecodeLinkCapabilities(0x00003c42),
	}, []cfgspace.Function{
		{
			Addr:  pci.BusAddress{},
			ID:    pci.DeviceID{Vendor: pci.Rockchip, Device: 0x0100},
			Class: pci.ClassRevision(pci.Bridge_PCI.Word()),
		},
		{
			Addr:  pci.BusAddress{Bus: 1},
			ID:    pci.DeviceID{Vendor: 0x144d, Device: 0xa808},
			Class: pci.ClassRevision(pci.Storage_NVM.Word() | 2<<8),
		},
	})
	var lines []string
	for _, f := range fs {
		lines = append(lines, f.String())
	}
	assert.Equal(lines, []string{
		"pcie-0.link: up",
		"pcie-0.bus: 0",
		"pcie-0.lanes: 4",
		"pcie-0.slots: 31",
		"pcie-0.port: type root port, version 2, msi 0",
		"pcie-0.linkcap: x4 5GT/s L0s L1",
		"pcie-0.error: ",
		"pcie-0.fn.[0000:00:00.0]: 0x1d87:0x0100 pci bridge",
		"pcie-0.fn.[0000:01:00.0]: 0x144d:0xa808 non-volatile memory",
	})
}

func TestPublish(t *testing.T) {
	assert := test.Assert{TB: t}
	c := newConn()
	err := Publish(c, DefaultHash, "pcie-0", rc.Status{
		Lanes: 1,
		Err:   pcierc.Timeout("link training"),
	}, nil)
	assert.Nil(err)
	// pipelined, one flush
	assert.Equal(len(c.sent), 6)
	assert.Equal(c.pub, []string{"pcie-0.link: down"})

	s, err := Hget(c, DefaultHash, "pcie-0.error")
	assert.Nil(err)
	assert.Equal(s, "link training: hardware timeout")
	s, err = Hget(c, DefaultHash, "pcie-0.lanes")
	assert.Nil(err)
	assert.Equal(s, "1")
	s, err = Hget(c, DefaultHash, "pcie-1.lanes")
	assert.Nil(err)
	assert.Equal(s, "")

	keys, err := Hkeys(c, DefaultHash, "pcie-0.")
	assert.Nil(err)
	sort.Strings(keys)
	assert.Equal(keys, []string{
		"pcie-0.bus",
		"pcie-0.error",
		"pcie-0.lanes",
		"pcie-0.link",
		"pcie-0.slots",
	})
}

func TestPublishError(t *testing.T) {
	assert := test.Assert{TB: t}
	c := newConn()
	c.err = errors.New("connection refused")
	err := Publish(c, DefaultHash, "pcie-0", rc.Status{}, nil)
	assert.NonNil(err)
	assert.True(strings.Contains(err.Error(), "refused"))
}
