// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package rccmd provides the pcierc command: root complex probe, bus scan,
// configuration space peek and poke, and published status.
package rccmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/garyburd/redigo/redis"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/pcierc/rc"
	"github.com/platinasystems/pcierc/status"
	goesredis "github.com/platinasystems/redis"
)

const Name = "pcierc"

type subcommand interface {
	String() string
	Usage() string
	Apropos() string
	Main(args ...string) error
}

// ByName maps subcommand names to their implementation.
type ByName map[string]subcommand

func (byName ByName) Plot(cmds ...subcommand) {
	for _, c := range cmds {
		if _, found := byName[c.String()]; found {
			panic(fmt.Errorf("%s: duplicate", c))
		}
		byName[c.String()] = c
	}
}

func (byName ByName) Keys() []string {
	keys := make([]string, 0, len(byName))
	for k := range byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Command struct {
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
	// Machine is loaded from the -dtb file when nil.
	Machine *Machine

	byName ByName
	dtb    string
	index  int
	redis  string
	hash   string
}

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [-dtb FILE] [-c INDEX] [-redis ADDR] [-hash HASH] " +
		"COMMAND [ARGS]..."
}

func (*Command) Apropos() string {
	return "bring up a Rockchip PCIe root complex"
}

func (*Command) Man() string {
	return `
DESCRIPTION
	Bring up the root complex described by the device tree and access
	the configuration space behind it.

	probe [-n]
		Run the bring-up sequence, scan the root and downstream
		buses and publish the result to redis. -n skips publishing.

	scan
		List the functions present on the root and downstream buses.

	read BDF REG [SIZE]
	write BDF REG VALUE [SIZE]
		Read or write SIZE (1, 2 or 4, default 4) bytes of the
		configuration space of function BDF ([DOMAIN:]BUS:DEV.FN).

	show [PREFIX]
		Print the published status, limited to keys starting
		with PREFIX.

	scan, read and write expect a previous probe in this boot.

OPTIONS
	-dtb FILE	flattened device tree (default /sys/firmware/fdt)
	-c INDEX	controller index, by node name order (default 0)
	-redis ADDR	status server host:port (default, the local goes redisd)
	-hash HASH	status hash and channel (default pcierc)`
}

func (c *Command) stdout() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}

// tty reports whether output goes to a terminal, so tables get headers.
func (c *Command) tty() bool {
	f, ok := c.stdout().(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (c *Command) init() {
	if c.byName != nil {
		return
	}
	c.byName = make(ByName)
	c.byName.Plot(
		&probe{c},
		&scan{c},
		&read{c},
		&write{c},
		&show{c},
	)
}

func (c *Command) help() {
	w := c.stdout()
	fmt.Fprintln(w, "usage:", c.Usage())
	for _, k := range c.byName.Keys() {
		sc := c.byName[k]
		fmt.Fprintf(w, "\t%-32s %s\n", sc.Usage(), sc.Apropos())
	}
}

func (c *Command) Main(args ...string) error {
	c.init()
	flag, args := flags.New(args, "-h", "-help", "--help", "-man")
	parm, args := parms.New(args, "-dtb", "-c", "-redis", "-hash")
	if flag.ByName["-man"] {
		fmt.Fprintln(c.stdout(), strings.TrimPrefix(c.Man(), "\n"))
		return nil
	}
	if flag.ByName["-h"] || flag.ByName["-help"] ||
		flag.ByName["--help"] || len(args) == 0 {
		c.help()
		return nil
	}
	for name, def := range map[string]string{
		"-dtb":  DefaultDtb,
		"-c":    "0",
		"-hash": status.DefaultHash,
	} {
		if len(parm.ByName[name]) == 0 {
			parm.ByName[name] = def
		}
	}
	c.redis = parm.ByName["-redis"]
	c.hash = parm.ByName["-hash"]
	c.dtb = parm.ByName["-dtb"]

	sc, found := c.byName[args[0]]
	if !found {
		return fmt.Errorf("%s: command not found", args[0])
	}
	var err error
	if c.index, err = strconv.Atoi(parm.ByName["-c"]); err != nil {
		return fmt.Errorf("-c %s: %v", parm.ByName["-c"], err)
	}
	return sc.Main(args[1:]...)
}

// controller loads the machine on first use and binds the selected
// controller.
func (c *Command) controller() (*rc.Controller, error) {
	if c.Machine == nil {
		m, err := Load(c.dtb)
		if err != nil {
			return nil, err
		}
		c.Machine = m
	}
	return c.Machine.Controller(c.index)
}

// dial connects to the -redis server, or without one to the redisd of the
// goes machine this runs on.
func (c *Command) dial() (redis.Conn, error) {
	if c.redis == "" {
		return goesredis.Connect()
	}
	return status.Dial(c.redis)
}
