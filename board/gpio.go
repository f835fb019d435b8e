// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"strconv"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
)

// GatherPins rebuilds the gpio pin map from the tree. Pins are the
// children of each gpio controller named NAME@INDEX with a
// gpio-pin-desc property; the controller's bank comes from its alias.
func GatherPins(t *fdt.Tree) {
	gpio.Aliases = make(gpio.GpioAliasMap)
	gpio.Pins = make(gpio.PinMap)
	t.MatchNode("aliases", gatherAliases)
	t.EachProperty("gpio-controller", "", gatherPins)
}

func gatherAliases(n *fdt.Node) {
	for p, pn := range n.Properties {
		if strings.Contains(p, "gpio") {
			val := strings.Split(string(pn), "\x00")
			v := strings.Split(val[0], "/")
			gpio.Aliases[p] = v[len(v)-1]
		}
	}
}

func gatherPins(n *fdt.Node, name string, value string) {
	for bank, al := range gpio.Aliases {
		if al != n.Name {
			continue
		}
		for _, c := range n.Children {
			pin, index, ok := pinDesc(c)
			if !ok {
				continue
			}
			mode := ""
			for p := range c.Properties {
				switch p {
				case "output-high", "output-low", "input":
					mode = p
				}
			}
			if mode == "" {
				continue
			}
			i, _ := strconv.Atoi(index)
			gpio.Pins[pin] = gpio.GpioPinMode[mode] |
				gpio.GpioBankToBase[bank] |
				gpio.Pin(i)
		}
	}
}

func pinDesc(c *fdt.Node) (pin, index string, ok bool) {
	if _, found := c.Properties["gpio-pin-desc"]; !found {
		return
	}
	pn := strings.Split(c.Name, "@")
	if len(pn) != 2 {
		return
	}
	return pn[0], pn[1], true
}

// pinName finds the pin of a controller with the given index.
func pinName(ctrl *fdt.Node, index uint32) (string, bool) {
	for _, c := range ctrl.Children {
		pin, i, ok := pinDesc(c)
		if ok && i == strconv.Itoa(int(index)) {
			return pin, true
		}
	}
	return "", false
}
