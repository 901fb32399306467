/*
 * UBone - MIT NG stub test cases
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

package mitng

import (
	"testing"

	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
)

func TestLatchAndInit(t *testing.T) {
	b := bus.New()
	t.Cleanup(b.Shutdown)
	ng := New(0)
	if err := b.Install(ng); err != nil {
		t.Fatal(err)
	}

	if !b.DATO(0o764042, 0o123456, device.Word) {
		t.Fatal("DATO timed out")
	}
	if value, _ := b.DATI(0o764042); value != 0o123456 {
		t.Errorf("REL reads %06o", value)
	}

	b.PulseINIT()
	if value, _ := b.DATI(0o764042); value != 0 {
		t.Errorf("REL reads %06o after INIT", value)
	}
}
