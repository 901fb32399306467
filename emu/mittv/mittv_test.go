/*
 * UBone - MIT TV stub test cases
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

package mittv

import (
	"testing"

	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
)

func TestWholeBlockLatches(t *testing.T) {
	b := bus.New()
	t.Cleanup(b.Shutdown)
	tv := New(0)
	if err := b.Install(tv); err != nil {
		t.Fatal(err)
	}

	// All 26 registers latch independently.
	for i := uint32(0); i < registerCount; i++ {
		if !b.DATO(0o764100+2*i, uint16(i)|0o100, device.Word) {
			t.Fatalf("DATO to register %d timed out", i)
		}
	}
	for i := uint32(0); i < registerCount; i++ {
		if value, _ := b.DATI(0o764100 + 2*i); value != uint16(i)|0o100 {
			t.Errorf("register %d reads %06o", i, value)
		}
	}

	// One past the block times out.
	if _, ok := b.DATI(0o764100 + 2*registerCount); ok {
		t.Error("address past the block answered")
	}

	b.PulseINIT()
	for i := uint32(0); i < registerCount; i++ {
		if value, _ := b.DATI(0o764100 + 2*i); value != 0 {
			t.Errorf("register %d reads %06o after INIT", i, value)
		}
	}
}
