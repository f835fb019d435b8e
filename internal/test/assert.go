// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package test

import (
	"errors"
	"reflect"
	"regexp"
	"testing"
)

// Assert wraps a testing.Test or Benchmark with several assertions.
type Assert struct {
	testing.TB
}

// Nil asserts that there is no error
func (assert Assert) Nil(err error) {
	assert.Helper()
	if err != nil {
		assert.Fatal(err)
	}
}

// NonNil asserts that there is an error
func (assert Assert) NonNil(err error) {
	assert.Helper()
	if err == nil {
		assert.Fatal("expected an error")
	}
}

// Error asserts that an error matches the given error, string, regex, or bool
// If v is true, asserts err isn't nil;
// otherwise, if false, asserts that it's nil.
func (assert Assert) Error(err error, v interface{}) {
	assert.Helper()
	switch t := v.(type) {
	case error:
		if !errors.Is(err, t) {
			assert.Fatalf("%v: expected %q", err, t.Error())
		}
	case string:
		if err == nil || err.Error() != t {
			assert.Fatalf("%v: expected %q", err, t)
		}
	case *regexp.Regexp:
		if err == nil || !t.MatchString(err.Error()) {
			assert.Fatalf("%v: expected %q", err, t.String())
		}
	case bool:
		if t {
			if err == nil {
				assert.Fatal("not error")
			}
		} else {
			assert.Nil(err)
		}
	default:
		assert.Fatal("can't match:", t)
	}
}

// Equal asserts deep equality.
func (assert Assert) Equal(got, want interface{}) {
	assert.Helper()
	if !reflect.DeepEqual(got, want) {
		assert.Fatalf("got %v\n\twant %v", got, want)
	}
}

// Hex asserts register value equality.
func (assert Assert) Hex(got, want uint32) {
	assert.Helper()
	if got != want {
		assert.Fatalf("got 0x%08x want 0x%08x", got, want)
	}
}

// True asserts flag.
func (assert Assert) True(t bool) {
	assert.Helper()
	if !t {
		assert.Fatal("not true")
	}
}

// False is not True.
func (assert Assert) False(t bool) {
	assert.Helper()
	if t {
		assert.Fatal("not false")
	}
}
