/*
 * UBone - Device base test cases
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package device

import (
	"errors"
	"testing"
)

func newBase() *Base {
	base := &Base{DevName: "t0", TypeName: "TDEV", BaseAddr: 0o760100, Level: 5}
	base.SetupRegisters(4)
	for i := range base.Registers {
		base.Registers[i].WritableBits = 0o177777
		base.Registers[i].ResetValue = 0
	}
	return base
}

func TestAccessMasks(t *testing.T) {
	if Word.Mask() != 0xffff || ByteLow.Mask() != 0x00ff || ByteHigh.Mask() != 0xff00 {
		t.Errorf("masks %04x %04x %04x", Word.Mask(), ByteLow.Mask(), ByteHigh.Mask())
	}
}

func TestRegisterByAddr(t *testing.T) {
	base := newBase()

	if reg := base.RegisterByAddr(0o760104); reg == nil || reg.Index != 2 {
		t.Error("RegisterByAddr missed interior register")
	}
	if base.RegisterByAddr(0o760110) != nil {
		t.Error("RegisterByAddr hit past the block")
	}
	if base.RegisterByAddr(0o760076) != nil {
		t.Error("RegisterByAddr hit before the block")
	}
}

func TestSetParamValidation(t *testing.T) {
	tests := []struct {
		param, value string
		ok           bool
	}{
		{"base", "760200", true},
		{"base", "760201", false}, // odd
		{"base", "xyzzy", false},
		{"vector", "340", true},
		{"vector", "341", false}, // not a vector boundary
		{"level", "5", true},
		{"level", "9", false},
		{"slot", "31", true},
		{"slot", "40", false},
		{"name", "dev1", true},
		{"name", "", false},
		{"bogus", "1", false},
		{"debug", "REGISTER,INTR", true},
		{"debug", "NOPE", false},
	}

	for _, test := range tests {
		base := newBase()
		err := base.SetParam(test.param, test.value)
		if test.ok && err != nil {
			t.Errorf("set %s=%s: %v", test.param, test.value, err)
		}
		if !test.ok {
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("set %s=%s: want ErrInvalidParameter, got %v", test.param, test.value, err)
			}
		}
	}
}

func TestSetParamLockedWhileEnabled(t *testing.T) {
	base := newBase()
	base.SetEnabled(true)

	for _, param := range []string{"base", "vector", "level", "slot"} {
		if err := base.SetParam(param, "4"); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s not locked while enabled: %v", param, err)
		}
	}
	// Name stays settable.
	if err := base.SetParam("name", "other"); err != nil {
		t.Errorf("name locked while enabled: %v", err)
	}
}

func TestResetRegisters(t *testing.T) {
	base := newBase()
	base.Registers[1].ResetValue = 0o123456
	base.Registers[1].DeviceWrite(0o177777)
	base.Registers[2].BusWrite(0o054321, 0xffff)

	base.ResetRegisters()

	if got := base.Registers[1].Read(); got != 0o123456 {
		t.Errorf("register 1 reads %06o after reset", got)
	}
	if got := base.Registers[2].DATOValue(); got != 0 {
		t.Errorf("register 2 dato %06o after reset", got)
	}
}
