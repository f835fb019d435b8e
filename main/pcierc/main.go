// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// +build linux

// This is the Rockchip PCIe root complex bring-up tool.
package main

import (
	"fmt"
	"os"

	"github.com/platinasystems/pcierc/cmd/rccmd"
)

func main() {
	var ecode int
	if err := new(rccmd.Command).Main(os.Args[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", rccmd.Name, err)
		ecode = 1
	}
	os.Exit(ecode)
}
