// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package status publishes root complex probe results to a redis hash.
//
// Each controller owns a structured key prefix, e.g. "pcie-0":
//
//	pcie-0.link: up
//	pcie-0.bus: 0
//	pcie-0.lanes: 4
//	pcie-0.slots: 31
//	pcie-0.port: type root port, version 2, msi 0
//	pcie-0.linkcap: x4 5GT/s L0s L1
//	pcie-0.error:
//	pcie-0.fn.[0000:01:00.0]: 0x144d:0xa808 non-volatile memory
//
// and every publish is announced on the channel named by the hash.
package status

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/platinasystems/pcierc/cfgspace"
	"github.com/platinasystems/pcierc/rc"
)

const Timeout = 500 * time.Millisecond

const (
	DefaultAddr = "localhost:6379"
	DefaultHash = "pcierc"
)

// Dial connects to the redis server at addr, DefaultAddr if empty.
func Dial(addr string) (redis.Conn, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	conn, err := net.DialTimeout("tcp", addr, Timeout)
	if err != nil {
		return nil, err
	}
	return redis.NewConn(conn, Timeout, Timeout), nil
}

// Key quotes dotted key fields.
func Key(v interface{}) string {
	s := fmt.Sprint(v)
	if strings.Contains(s, ".") {
		s = fmt.Sprint("[", s, "]")
	}
	return s
}

var keyRe = regexp.MustCompile("[\\[][^\\]]+[\\]]|[^.]+")

// Split a structured key.
//
//	"pcie-0.link" -> ["pcie-0", "link"]
//	"pcie-0.fn.[0000:01:00.0]" -> ["pcie-0", "fn", "0000:01:00.0"]
func Split(key string) []string {
	fields := keyRe.FindAllString(key, -1)
	for i, field := range fields {
		if field[0] == '[' && field[len(field)-1] == ']' {
			fields[i] = field[1 : len(field)-1]
		}
	}
	return fields
}

// Field is one hash entry.
type Field struct {
	Key, Value string
}

func (f Field) String() string { return fmt.Sprint(f.Key, ": ", f.Value) }

// Fields renders the probe status and scanned functions of the named
// controller. Root port capabilities are only known with the link up.
func Fields(name string, s rc.Status, fns []cfgspace.Function) []Field {
	link := "down"
	if s.LinkUp {
		link = "up"
	}
	e := ""
	if s.Err != nil {
		e = s.Err.Error()
	}
	prefix := Key(name) + "."
	fs := []Field{
		{prefix + "link", link},
		{prefix + "bus", fmt.Sprint(s.Bus)},
		{prefix + "lanes", fmt.Sprint(s.Lanes)},
		{prefix + "slots", fmt.Sprint(s.Slots)},
	}
	if s.LinkUp {
		fs = append(fs,
			Field{prefix + "port", s.Port.String()},
			Field{prefix + "linkcap", s.LinkCap.String()})
	}
	fs = append(fs, Field{prefix + "error", e})
	for _, fn := range fns {
		fs = append(fs, Field{
			Key: fmt.Sprint(prefix, "fn.", Key(fn.Addr)),
			Value: fmt.Sprintf("%v:%v %v", fn.ID.Vendor, fn.ID.Device,
				fn.Class.Class()),
		})
	}
	return fs
}

// Publish pipelines the fields to hash then announces the link state on
// the hash's channel.
func Publish(conn redis.Conn, hash, name string, s rc.Status,
	fns []cfgspace.Function) error {
	fs := Fields(name, s, fns)
	for _, f := range fs {
		if err := conn.Send("HSET", hash, f.Key, f.Value); err != nil {
			return err
		}
	}
	if err := conn.Send("PUBLISH", hash, fs[0].String()); err != nil {
		return err
	}
	_, err := conn.Do("")
	return err
}

func Hget(conn redis.Conn, hash, field string) (s string, err error) {
	v, err := conn.Do("HGET", hash, field)
	if v != nil && err == nil {
		s = vstring(v)
	}
	return
}

// Hkeys lists the fields of hash under prefix.
func Hkeys(conn redis.Conn, hash, prefix string) (keys []string, err error) {
	ret, err := conn.Do("HKEYS", hash)
	if ret == nil || err != nil {
		return
	}
	vs, ok := ret.([]interface{})
	if !ok {
		return nil, fmt.Errorf("HKEYS %s: unexpected %T", hash, ret)
	}
	for _, v := range vs {
		if k := vstring(v); strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return
}

func vstring(v interface{}) (s string) {
	switch t := v.(type) {
	case []byte:
		s = string(t)
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return
}
