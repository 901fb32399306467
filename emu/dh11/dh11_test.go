/*
 * UBone - DH11 test cases
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

package dh11

import (
	"testing"
	"time"

	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
)

// Register offsets from the base address.
const (
	offSCR  = 0o00
	offNRCR = 0o02
	offLPR  = 0o04
	offCAR  = 0o06
	offBCR  = 0o10
	offSSR  = 0o16
)

func newTestDH(t *testing.T) (*DH11, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Shutdown)
	dh := New(b, 0)
	if err := b.Install(dh); err != nil {
		t.Fatal(err)
	}
	return dh, b
}

func write(t *testing.T, b *bus.Bus, off uint32, value uint16) {
	t.Helper()
	if !b.DATO(0o760020+off, value, device.Word) {
		t.Fatalf("DATO %06o timed out", 0o760020+off)
	}
}

func read(t *testing.T, b *bus.Bus, off uint32) uint16 {
	t.Helper()
	value, ok := b.DATI(0o760020 + off)
	if !ok {
		t.Fatalf("DATI %06o timed out", 0o760020+off)
	}
	return value
}

// feed enqueues directly, the way the paced delivery callback does.
func feed(dh *DH11, char byte, line int) bool {
	dh.Mutex.Lock()
	defer dh.Mutex.Unlock()
	return dh.enqueue(char, line, false, false, false)
}

func TestSiloWordEncoding(t *testing.T) {
	dh, b := newTestDH(t)

	dh.Mutex.Lock()
	dh.enqueue('A', 5, true, false, false)
	dh.Mutex.Unlock()

	word := read(t, b, offNRCR)
	if word&siloValid == 0 {
		t.Fatal("valid bit clear")
	}
	if word&siloCharMask != 'A' {
		t.Errorf("char %03o", word&siloCharMask)
	}
	if (word>>8)&siloLineMask != 5 {
		t.Errorf("line %d", (word>>8)&siloLineMask)
	}
	if word&siloParity == 0 || word&siloFraming != 0 || word&siloOverrun != 0 {
		t.Errorf("error flags wrong: %06o", word)
	}
}

func TestSiloFIFOOrder(t *testing.T) {
	dh, b := newTestDH(t)

	for _, by := range []byte{'a', 'b', 'c'} {
		feed(dh, by, 0)
	}
	for _, want := range []byte{'a', 'b', 'c'} {
		word := read(t, b, offNRCR)
		if byte(word&siloCharMask) != want {
			t.Errorf("dequeued %03o, want %03o", word&siloCharMask, want)
		}
	}
}

func TestSiloFillField(t *testing.T) {
	dh, b := newTestDH(t)

	// Run past 32 so the fill field exercises bit 13 both ways.
	for i := 0; i < 40; i++ {
		feed(dh, byte(i), 0)
		want := uint16(dh.rx.count&0o77) << 8
		if got := read(t, b, offSSR) & ssrFillMask; got != want {
			t.Fatalf("fill after %d enqueues: %06o want %06o", i+1, got, want)
		}
	}
	for i := 0; i < 40; i++ {
		read(t, b, offNRCR)
		want := uint16(dh.rx.count&0o77) << 8
		if got := read(t, b, offSSR) & ssrFillMask; got != want {
			t.Fatalf("fill after dequeue %d: %06o want %06o", i, got, want)
		}
	}
}

func TestSiloOverflow(t *testing.T) {
	dh, b := newTestDH(t)

	for i := 0; i < siloDepth; i++ {
		if !feed(dh, byte(i), 0) {
			t.Fatalf("enqueue %d refused with room left", i)
		}
	}
	if dh.rx.count != siloDepth {
		t.Fatalf("count %d, want %d", dh.rx.count, siloDepth)
	}

	// The 65th character is dropped and flags the overflow.
	if feed(dh, 0o252, 0) {
		t.Error("enqueue into full silo succeeded")
	}
	if dh.rx.count != siloDepth {
		t.Errorf("count %d after overflow, want %d", dh.rx.count, siloDepth)
	}
	if read(t, b, offSSR)&ssrStorageInt == 0 {
		t.Error("STORAGE_INT clear after overflow")
	}

	// The stored characters survive intact.
	word := read(t, b, offNRCR)
	if byte(word&siloCharMask) != 0 {
		t.Errorf("first char %03o, want 0", word&siloCharMask)
	}
}

func TestDequeueEmpty(t *testing.T) {
	dh, b := newTestDH(t)

	feed(dh, 'x', 0)
	read(t, b, offNRCR)

	// Draining leaves the bottom word readable with valid clear.
	word := read(t, b, offNRCR)
	if word&siloValid != 0 {
		t.Errorf("empty dequeue has valid set: %06o", word)
	}
	if byte(word&siloCharMask) != 'x' {
		t.Errorf("empty dequeue char %03o, want stale 'x'", word&siloCharMask)
	}
	if dh.rx.count != 0 {
		t.Errorf("empty dequeue changed count to %d", dh.rx.count)
	}
}

func TestAlarmInterrupt(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSSR, 2)           // alarm level 2
	write(t, b, offSCR, scrRxIntEnb) // enable receive interrupts

	feed(dh, 'a', 0)
	feed(dh, 'b', 0)
	if _, ok := b.AcknowledgeInterrupt(0); ok {
		t.Fatal("interrupt before alarm level crossed")
	}

	feed(dh, 'c', 0)
	vector, ok := b.AcknowledgeInterrupt(0)
	if !ok || vector != 0o340 {
		t.Fatalf("alarm interrupt: got %03o (%v)", vector, ok)
	}
}

func TestAlarmInterruptDisabled(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSSR, 0)
	feed(dh, 'a', 0)
	if _, ok := b.AcknowledgeInterrupt(0); ok {
		t.Error("interrupt with RX_INT_ENABLE clear")
	}
}

func TestStorageInterrupt(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSCR, scrStorIntEnb)
	for i := 0; i < siloDepth; i++ {
		feed(dh, byte(i), 0)
	}
	if _, ok := b.AcknowledgeInterrupt(0); ok {
		t.Fatal("storage interrupt before overflow")
	}
	feed(dh, 0, 0)
	if _, ok := b.AcknowledgeInterrupt(0); !ok {
		t.Error("no storage interrupt on overflow")
	}
}

func TestLineParameterMirrors(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSCR, 3) // select line 3
	write(t, b, offLPR, 0o001234)
	write(t, b, offCAR, 0o004321)
	write(t, b, offBCR, 0o177001)

	write(t, b, offSCR, 7) // select line 7
	write(t, b, offLPR, 0o000707)

	if dh.lprLine[3] != 0o001234 || dh.carLine[3] != 0o004321 || dh.bcrLine[3] != 0o177001 {
		t.Errorf("line 3 mirrors: LPR %06o CAR %06o BCR %06o",
			dh.lprLine[3], dh.carLine[3], dh.bcrLine[3])
	}
	if dh.lprLine[7] != 0o000707 {
		t.Errorf("line 7 LPR %06o", dh.lprLine[7])
	}

	// The host reads back what it last wrote.
	if got := read(t, b, offLPR); got != 0o000707 {
		t.Errorf("LPR reads %06o, want %06o", got, 0o000707)
	}
	if got := read(t, b, offCAR); got != 0o004321 {
		t.Errorf("CAR reads %06o, want %06o", got, 0o004321)
	}
	if got := read(t, b, offBCR); got != 0o177001 {
		t.Errorf("BCR reads %06o, want %06o", got, 0o177001)
	}
}

func TestInitPreservesAddressRegisters(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSCR, 3)
	write(t, b, offLPR, 0o001234)
	write(t, b, offCAR, 0o004321)
	write(t, b, offBCR, 0o177001)
	for i := 0; i < 5; i++ {
		feed(dh, byte(i), 0)
	}

	b.PulseINIT()

	if dh.rx.count != 0 {
		t.Errorf("count %d after INIT", dh.rx.count)
	}
	if dh.lprLine[3] != 0 {
		t.Errorf("LPR mirror survived INIT: %06o", dh.lprLine[3])
	}
	if dh.carLine[3] != 0o004321 || dh.bcrLine[3] != 0o177001 {
		t.Errorf("CAR/BCR mirrors lost on INIT: %06o %06o", dh.carLine[3], dh.bcrLine[3])
	}
	for i := range dh.Registers {
		if got := dh.Registers[i].Read(); got != 0 {
			t.Errorf("%s reads %06o after INIT", dh.Registers[i].Name, got)
		}
	}
}

func TestPowerCycleClearsMirrors(t *testing.T) {
	dh, b := newTestDH(t)

	write(t, b, offSCR, 1)
	write(t, b, offCAR, 0o004321)
	b.PowerCycle()

	if dh.carLine[1] != 0 {
		t.Errorf("CAR mirror survived power cycle: %06o", dh.carLine[1])
	}
}

func TestReceiveCharReachesSilo(t *testing.T) {
	dh, b := newTestDH(t)

	// The worker paces input through the bus clock; give it a moment.
	dh.ReceiveChar([]byte("hi"))

	deadline := time.Now().Add(5 * time.Second)
	for {
		dh.Mutex.Lock()
		n := dh.rx.count
		dh.Mutex.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("silo fill %d, want 2", n)
		}
		time.Sleep(time.Millisecond)
	}

	word := read(t, b, offNRCR)
	if byte(word&siloCharMask) != 'h' {
		t.Errorf("first char %03o", word&siloCharMask)
	}
}
