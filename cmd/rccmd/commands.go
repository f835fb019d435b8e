// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rccmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/pcierc/cfgspace"
	"github.com/platinasystems/pcierc/pci"
	"github.com/platinasystems/pcierc/rc"
	"github.com/platinasystems/pcierc/status"
)

type probe struct{ *Command }

func (*probe) String() string  { return "probe" }
func (*probe) Usage() string   { return "probe [-n]" }
func (*probe) Apropos() string { return "bring up the link and publish status" }

func (c *probe) Main(args ...string) error {
	flag, args := flags.New(args, "-n")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	ctl, err := c.controller()
	if err != nil {
		return err
	}
	var fns []cfgspace.Function
	_, err = ctl.Probe()
	if err == nil {
		fns, err = ctl.Proxy().Scan()
	}
	st := ctl.Status()
	link := "down"
	if st.LinkUp {
		link = "up"
	}
	w := c.stdout()
	fmt.Fprintf(w, "%v: link %s, %d lanes, %d slots\n", ctl, link,
		st.Lanes, st.Slots)
	for _, fn := range fns {
		fmt.Fprintln(w, "\t", fn)
	}
	if !flag.ByName["-n"] {
		c.publish(ctl.String(), st, fns)
	}
	return err
}

// publish is best effort; the probe result stands without a status server.
func (c *probe) publish(name string, st rc.Status, fns []cfgspace.Function) {
	conn, err := c.dial()
	if err != nil {
		log.Print("warn", "redis: ", err)
		return
	}
	defer conn.Close()
	if err = status.Publish(conn, c.hash, name, st, fns); err != nil {
		log.Print("warn", "redis: ", err)
	}
}

type scan struct{ *Command }

func (*scan) String() string  { return "scan" }
func (*scan) Usage() string   { return "scan" }
func (*scan) Apropos() string { return "list present functions" }

func (c *scan) Main(args ...string) error {
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	ctl, err := c.controller()
	if err != nil {
		return err
	}
	fns, err := ctl.Proxy().Scan()
	if err != nil {
		return err
	}
	w := c.stdout()
	if c.tty() {
		fmt.Fprintf(w, "%-12s %-13s %s\n", "BDF", "ID", "CLASS")
	}
	for _, fn := range fns {
		fmt.Fprintln(w, fn)
	}
	return nil
}

// access parses BDF REG [VALUE] [SIZE] arguments.
func access(args []string, value bool) (a pci.BusAddress, reg uint,
	v uint32, s pci.Size, err error) {
	n := 2
	if value {
		n = 3
	}
	if len(args) < n {
		err = fmt.Errorf("missing arguments")
		return
	}
	if len(args) > n+1 {
		err = fmt.Errorf("%v: unexpected", args[n+1:])
		return
	}
	if a, err = pci.ParseBusAddress(args[0]); err != nil {
		return
	}
	r, err := strconv.ParseUint(args[1], 0, 12)
	if err != nil {
		err = fmt.Errorf("REG %s: %v", args[1], err)
		return
	}
	reg = uint(r)
	if value {
		var x uint64
		if x, err = strconv.ParseUint(args[2], 0, 32); err != nil {
			err = fmt.Errorf("VALUE %s: %v", args[2], err)
			return
		}
		v = uint32(x)
	}
	s = pci.Size32
	if len(args) > n {
		s, err = pci.ParseSize(args[n])
	}
	return
}

type read struct{ *Command }

func (*read) String() string  { return "read" }
func (*read) Usage() string   { return "read BDF REG [SIZE]" }
func (*read) Apropos() string { return "read configuration space" }

func (c *read) Main(args ...string) error {
	a, reg, _, s, err := access(args, false)
	if err != nil {
		return err
	}
	ctl, err := c.controller()
	if err != nil {
		return err
	}
	v, err := ctl.Proxy().ReadConfig(a, reg, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout(), "%v 0x%03x: 0x%0*x\n", a, reg, 2*int(s), v)
	return nil
}

type write struct{ *Command }

func (*write) String() string  { return "write" }
func (*write) Usage() string   { return "write BDF REG VALUE [SIZE]" }
func (*write) Apropos() string { return "write configuration space" }

func (c *write) Main(args ...string) error {
	a, reg, v, s, err := access(args, true)
	if err != nil {
		return err
	}
	ctl, err := c.controller()
	if err != nil {
		return err
	}
	return ctl.Proxy().WriteConfig(a, reg, v, s)
}

type show struct{ *Command }

func (*show) String() string  { return "show" }
func (*show) Usage() string   { return "show [PREFIX]" }
func (*show) Apropos() string { return "print published status" }

func (c *show) Main(args ...string) error {
	prefix := ""
	switch len(args) {
	case 0:
	case 1:
		prefix = args[0]
	default:
		return fmt.Errorf("%v: unexpected", args[1:])
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	keys, err := status.Hkeys(conn, c.hash, prefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)
	w := c.stdout()
	for _, k := range keys {
		v, err := status.Hget(conn, c.hash, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", k, v)
	}
	return nil
}
