/*
 * UBone - DH11 asynchronous serial line interface
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
 * The controller multiplexes up to 16 asynchronous lines; this
 * emulation serves one line, fed by a telnet connection. Received
 * characters pass through the 64 entry silo; the host drains it by
 * reading NRCR. Per-line parameters live in mirror arrays indexed by
 * the line select field of SCR.
 */

package dh11

import (
	"fmt"
	"net"

	"gopkg.in/tomb.v2"

	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
	"github.com/qbus11/ubone/emu/register"
	"github.com/qbus11/ubone/telnet"
	"github.com/qbus11/ubone/util/debug"
)

// Register block.
const (
	regSCR  = iota // System control register
	regNRCR        // Next received character register
	regLPR         // Line parameter register
	regCAR         // Current address register
	regBCR         // Byte count register
	regBAR         // Buffer active register
	regBRCR        // Break control register
	regSSR         // Silo status register
)

// SCR bits.
const (
	scrLineMask   = 0o000017 // Line select for LPR/CAR/BCR
	scrRxIntEnb   = 0o000100 // Silo alarm interrupt enable
	scrStorIntEnb = 0o000200 // Storage (overflow) interrupt enable
)

// SSR bits.
const (
	ssrAlarmMask  = 0o000077 // Silo alarm level
	ssrFillMask   = 0o037400 // Silo fill level, bits 8-13
	ssrStorageInt = 0o100000 // Silo overflowed, data lost
)

// Silo word encoding.
const (
	siloCharMask = 0o000377
	siloLineMask = 0o017
	siloParity   = 0o010000
	siloFraming  = 0o020000
	siloOverrun  = 0o040000
	siloValid    = 0o100000
)

const (
	lineCount = 16
	// Delivery delay per received character in bus clock ticks.
	charDelay = 1
)

// Default bus geometry.
const (
	defaultBase   = 0o760020
	defaultVector = 0o340
	defaultLevel  = 5
	defaultSlot   = 31
)

// Debug bits private to the DH11.
const debugChar = debug.DebugDevice

// DH11 emulates one receive line of the 16 line multiplexer.
type DH11 struct {
	device.Base

	b   *bus.Bus
	ssr uint16 // SSR shadow: alarm, fill, storage int
	rx  silo

	// Per-line parameter mirrors, selected by SCR<3:0>.
	lprLine [lineCount]uint16
	carLine [lineCount]uint16
	bcrLine [lineCount]uint16

	port      string
	connected bool
	conn      net.Conn
	input     chan byte
}

// New builds a DH11 at the given base address, 0 for the default.
func New(b *bus.Bus, baseAddr uint32) *DH11 {
	dh := &DH11{b: b, input: make(chan byte, 512)}
	dh.DevName = "dh0"
	dh.TypeName = "DH11"
	dh.LogLabel = "dh11"
	dh.BaseAddr = defaultBase
	if baseAddr != 0 {
		dh.BaseAddr = baseAddr
	}
	dh.Vector = defaultVector
	dh.Level = defaultLevel
	dh.Slot = defaultSlot

	dh.SetupRegisters(8)
	setup := []struct {
		name     string
		dati     bool
		dato     bool
		writable uint16
	}{
		{"SCR", false, false, 0o177777},
		{"NRCR", true, false, 0},
		{"LPR", false, true, 0o177777},
		{"CAR", false, true, 0o177777},
		{"BCR", false, true, 0o177777},
		{"BAR", false, false, 0o177777},
		{"BRCR", false, false, 0o177777},
		{"SSR", false, true, ssrAlarmMask},
	}
	for i, s := range setup {
		reg := &dh.Registers[i]
		reg.Name = s.name
		reg.ActiveOnDATI = s.dati
		reg.ActiveOnDATO = s.dato
		reg.WritableBits = s.writable
	}
	return dh
}

// Bus cycle on an active register. Runs with the device mutex held.
func (dh *DH11) AfterRegisterAccess(reg *register.Register, cycle device.Cycle, _ device.Access) {
	if cycle == device.DATI {
		if reg.Index == regNRCR {
			reg.DeviceWrite(dh.dequeue())
		}
		return
	}

	line := dh.Registers[regSCR].DATOValue() & scrLineMask
	switch reg.Index {
	case regLPR:
		dh.lprLine[line] = reg.DATOValue()
		reg.DeviceWrite(reg.DATOValue())
	case regCAR:
		dh.carLine[line] = reg.DATOValue()
		reg.DeviceWrite(reg.DATOValue())
	case regBCR:
		dh.bcrLine[line] = reg.DATOValue()
		reg.DeviceWrite(reg.DATOValue())
	case regSSR:
		dh.ssr = (dh.ssr &^ ssrAlarmMask) | (reg.DATOValue() & ssrAlarmMask)
		dh.publishSSR()
	}
}

// enqueue stores one received character with its line metadata. A full
// silo drops the character, flags STORAGE_INT and optionally interrupts.
func (dh *DH11) enqueue(char byte, line int, parityErr, framingErr, overrun bool) bool {
	scr := dh.Registers[regSCR].DATOValue()

	if dh.rx.count > 63 {
		dh.ssr |= ssrStorageInt
		dh.publishSSR()
		if scr&scrStorIntEnb != 0 {
			dh.b.RequestInterrupt(dh)
		}
		debug.Debugf(dh.LogLabel, dh.DebugMask, debugChar, "silo overflow, char %03o dropped", char)
		return false
	}

	word := uint16(char) | uint16(line&siloLineMask)<<8 | siloValid
	if parityErr {
		word |= siloParity
	}
	if framingErr {
		word |= siloFraming
	}
	if overrun {
		word |= siloOverrun
	}
	dh.rx.push(word)
	dh.publishSSR()

	alarm := int(dh.ssr & ssrAlarmMask)
	if dh.rx.count > alarm && scr&scrRxIntEnb != 0 {
		dh.b.RequestInterrupt(dh)
	}
	debug.Debugf(dh.LogLabel, dh.DebugMask, debugChar, "rcv %03o line %d fill %d", char, line, dh.rx.count)
	return true
}

// dequeue removes the oldest silo entry. Reading an empty silo yields
// the stale bottom word with the valid bit clear and changes nothing.
func (dh *DH11) dequeue() uint16 {
	if dh.rx.count == 0 {
		return dh.rx.words[0] &^ siloValid
	}
	word := dh.rx.pop() | siloValid
	dh.publishSSR()
	return word
}

// publishSSR refreshes the fill field and the host-visible latch.
func (dh *DH11) publishSSR() {
	dh.ssr = (dh.ssr &^ ssrFillMask) | (uint16(dh.rx.count&0o77) << 8)
	dh.Registers[regSSR].DeviceWrite(dh.ssr)
}

// Run moves characters from the telnet reader into the silo, pacing
// them through the bus clock.
func (dh *DH11) Run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case by := <-dh.input:
			dh.b.Schedule(dh, dh.deliver, charDelay, int(by))
		}
	}
}

// deliver runs on the bus clock goroutine.
func (dh *DH11) deliver(iarg int) {
	dh.Mutex.Lock()
	dh.enqueue(byte(iarg), 0, false, false, false)
	dh.Mutex.Unlock()
}

// Connect attaches a telnet session to the line.
func (dh *DH11) Connect(conn net.Conn) {
	dh.Mutex.Lock()
	dh.connected = true
	dh.conn = conn
	dh.Mutex.Unlock()
}

// Disconnect detaches the telnet session.
func (dh *DH11) Disconnect() {
	dh.Mutex.Lock()
	dh.connected = false
	dh.conn = nil
	dh.Mutex.Unlock()
}

// ReceiveChar hands received bytes to the worker. A byte that finds the
// buffer full goes straight into the silo with the overrun flag set.
func (dh *DH11) ReceiveChar(data []byte) {
	for _, by := range data {
		select {
		case dh.input <- by:
		default:
			// Reader outran the worker; flag the loss.
			dh.Mutex.Lock()
			dh.enqueue(by, 0, false, false, true)
			dh.Mutex.Unlock()
		}
	}
}

// SetParam handles the DH11's own port parameter beside the common set.
func (dh *DH11) SetParam(name, value string) error {
	if name == "port" {
		dh.port = value
		return nil
	}
	return dh.Base.SetParam(name, value)
}

// Power-on restores reset state on the rising DCLO edge, losing the
// per-line mirrors too.
func (dh *DH11) PowerChanged(_, dcloEdge device.Edge) {
	if dcloEdge == device.EdgeRising {
		dh.reset(true)
	}
}

// INIT clears registers, the silo and the line parameters; CAR and BCR
// mirrors survive.
func (dh *DH11) InitChanged(asserted bool) {
	if asserted {
		dh.reset(false)
	}
}

func (dh *DH11) reset(power bool) {
	dh.ResetRegisters()
	dh.rx.clear()
	dh.ssr = 0
	dh.publishSSR()
	dh.lprLine = [lineCount]uint16{}
	if power {
		dh.carLine = [lineCount]uint16{}
		dh.bcrLine = [lineCount]uint16{}
	}
}

// register the model on initialize.
func init() {
	config.RegisterModel("DH11", config.TypeModel, create)
}

// Create a DH11 from a config stanza.
func create(b *bus.Bus, addr uint32, options []config.Option) error {
	dh := New(b, addr)
	for _, option := range options {
		if err := dh.SetParam(option.Name, option.EqualOpt); err != nil {
			return fmt.Errorf("DH11: %w", err)
		}
	}
	if err := b.Install(dh); err != nil {
		return err
	}
	return telnet.RegisterTerminal(dh, dh.port)
}
