/*
 * UBone - UNIBUS adapter
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
 * The adapter owns the I/O page: devices claim contiguous register
 * blocks, the adapter turns host DATI/DATO cycles into register cell
 * updates plus device callbacks, arbitrates interrupt requests per
 * (level, slot) and distributes INIT and power transitions. It stands
 * in for the PRU firmware that snoops the physical bus.
 */

package bus

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/qbus11/ubone/emu/device"
	"github.com/qbus11/ubone/emu/event"
	"github.com/qbus11/ubone/emu/register"
	"github.com/qbus11/ubone/util/debug"
)

// Tick of the adapter clock driving the event scheduler.
const clockTick = time.Millisecond

type intrRequest struct {
	dev     device.Device
	vector  uint16
	pending bool
}

// One arbitration level holds a request slot per backplane position.
// The lowest occupied slot wins within a level.
type requestLevel struct {
	slots    [device.MaxSlot + 1]*intrRequest
	slotMask uint32
}

type busDevice struct {
	dev    device.Device
	worker *tomb.Tomb // nil when the device has no Run
}

// Bus connects devices to the emulated UNIBUS.
type Bus struct {
	mu      sync.Mutex
	devices []*busDevice

	levels [device.MaxLevel + 1]requestLevel

	lineINIT bool
	lineDCLO bool
	lineACLO bool

	sched *event.Scheduler
	clock tomb.Tomb
}

// New creates a bus adapter and starts its clock.
func New() *Bus {
	b := &Bus{sched: event.NewScheduler()}
	b.clock.Go(b.runClock)
	return b
}

// runClock drives the event scheduler. One tick is one scheduler time
// unit.
func (b *Bus) runClock() error {
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()
	for {
		select {
		case <-b.clock.Dying():
			return nil
		case <-ticker.C:
			b.sched.Advance(1)
		}
	}
}

// Shutdown stops workers and the clock and releases all devices.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	devices := append([]*busDevice{}, b.devices...)
	b.mu.Unlock()

	for _, bd := range devices {
		b.Uninstall(bd.dev)
	}
	b.clock.Kill(nil)
	_ = b.clock.Wait()
}

// Schedule queues a device callback on the adapter clock.
func (b *Bus) Schedule(owner any, cb event.Callback, delay int, iarg int) {
	b.sched.Schedule(owner, cb, delay, iarg)
}

// CancelEvent drops a queued callback.
func (b *Bus) CancelEvent(owner any, iarg int) {
	b.sched.Cancel(owner, iarg)
}

// Install claims the device's address range and powers it up with a
// DCLO cycle. A range collision with an enabled device fails with
// ErrAddressConflict and the device stays disabled.
func (b *Bus) Install(dev device.Device) error {
	base := dev.BusDevice()

	b.mu.Lock()
	if base.Enabled() {
		b.mu.Unlock()
		return nil
	}
	for _, other := range b.devices {
		ob := other.dev.BusDevice()
		if !ob.Enabled() {
			continue
		}
		if base.BaseAddr < ob.BaseAddr+ob.Span() && ob.BaseAddr < base.BaseAddr+base.Span() {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s %06o-%06o overlaps %s",
				device.ErrAddressConflict, base.DevName, base.BaseAddr,
				base.BaseAddr+base.Span()-2, ob.DevName)
		}
	}

	bd := b.lookupLocked(dev)
	if bd == nil {
		bd = &busDevice{dev: dev}
		b.devices = append(b.devices, bd)
	}
	if runner, ok := dev.(device.Runner); ok {
		bd.worker = &tomb.Tomb{}
		worker := bd.worker
		worker.Go(func() error {
			return runner.Run(worker)
		})
	}
	base.SetEnabled(true)
	b.mu.Unlock()

	// Reset by DCLO power cycle, the way a freshly plugged card sees
	// power come up.
	b.deliverPower(dev, device.EdgeNone, device.EdgeRising)
	b.deliverPower(dev, device.EdgeNone, device.EdgeFalling)

	slog.Info("device installed", "name", base.DevName, "type", base.TypeName,
		"base", fmt.Sprintf("%06o", base.BaseAddr))
	return nil
}

func (b *Bus) lookupLocked(dev device.Device) *busDevice {
	for _, bd := range b.devices {
		if bd.dev == dev {
			return bd
		}
	}
	return nil
}

// Uninstall releases the address claim, cancels pending interrupts and
// stops the worker. The device stays known to the bus so it can be
// re-enabled from the console.
func (b *Bus) Uninstall(dev device.Device) {
	base := dev.BusDevice()

	b.mu.Lock()
	var worker *tomb.Tomb
	if bd := b.lookupLocked(dev); bd != nil {
		worker = bd.worker
		bd.worker = nil
	}
	b.cancelInterruptLocked(dev)
	base.SetEnabled(false)
	b.mu.Unlock()

	if worker != nil {
		worker.Kill(nil)
		_ = worker.Wait()
	}
	b.sched.CancelOwner(dev)
}

// Devices returns every device known to the bus, enabled or not, in
// the order they were first installed.
func (b *Bus) Devices() []device.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	devs := make([]device.Device, 0, len(b.devices))
	for _, bd := range b.devices {
		devs = append(devs, bd.dev)
	}
	return devs
}

// FindDevice locates an installed device by instance name.
func (b *Bus) FindDevice(name string) device.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bd := range b.devices {
		if strings.EqualFold(bd.dev.BusDevice().DevName, name) {
			return bd.dev
		}
	}
	return nil
}

func (b *Bus) findByAddr(addr uint32) device.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bd := range b.devices {
		base := bd.dev.BusDevice()
		if base.Enabled() && addr >= base.BaseAddr && addr < base.BaseAddr+base.Span() {
			return bd.dev
		}
	}
	return nil
}

// DATI performs a host read cycle. The addressed device's callback runs
// before the DATI latch is sampled, so active registers can refresh
// what the host is about to see. ok is false on a non-existent address
// (bus timeout).
func (b *Bus) DATI(addr uint32) (uint16, bool) {
	if addr&1 != 0 {
		return 0, false
	}
	dev := b.findByAddr(addr)
	if dev == nil {
		return 0, false
	}
	base := dev.BusDevice()
	reg := base.RegisterByAddr(addr)

	base.Mutex.Lock()
	defer base.Mutex.Unlock()

	if reg.ActiveOnDATI {
		b.callback(dev, reg, device.DATI, device.Word)
	}
	value := reg.Read()
	base.LogRegisters("DATI", reg)
	return value, true
}

// DATO performs a host write cycle. The DATO latch is updated first,
// then the callback runs with the handshake asserted.
func (b *Bus) DATO(addr uint32, value uint16, access device.Access) bool {
	if addr&1 != 0 {
		return false
	}
	dev := b.findByAddr(addr)
	if dev == nil {
		return false
	}
	base := dev.BusDevice()
	reg := base.RegisterByAddr(addr)

	base.Mutex.Lock()
	defer base.Mutex.Unlock()

	reg.BusWrite(value, access.Mask())
	if reg.ActiveOnDATO {
		b.callback(dev, reg, device.DATO, access)
	} else if reg.WritableBits != 0 {
		// Passive register: the host sees its own write back.
		reg.DeviceWrite(reg.DATOValue())
	}
	base.LogRegisters("DATO", reg)
	return true
}

// callback shields the bus service path from a panicking device so the
// handshake is always released.
func (b *Bus) callback(dev device.Device, reg *register.Register, cycle device.Cycle, access device.Access) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("device callback panic", "device", dev.BusDevice().DevName,
				"register", reg.Name, "cycle", cycle.String(), "panic", fmt.Sprint(r))
		}
	}()
	dev.AfterRegisterAccess(reg, cycle, access)
}

// RequestInterrupt posts an interrupt at the device's level and slot.
// Requests are idempotent; the request stays pending until acknowledged
// or cancelled.
func (b *Bus) RequestInterrupt(dev device.Device) {
	base := dev.BusDevice()
	if base.Level < 1 || base.Level > device.MaxLevel {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	level := &b.levels[base.Level]
	req := level.slots[base.Slot]
	if req == nil {
		req = &intrRequest{dev: dev}
		level.slots[base.Slot] = req
	}
	req.vector = base.Vector
	req.pending = true
	level.slotMask |= 1 << uint(base.Slot)

	debug.Debugf(base.LogLabel, base.DebugMask, debug.DebugIntr,
		"INTR request level %d slot %d vector %03o", base.Level, base.Slot, base.Vector)
}

// CancelInterrupt withdraws any pending request of the device.
func (b *Bus) CancelInterrupt(dev device.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelInterruptLocked(dev)
}

func (b *Bus) cancelInterruptLocked(dev device.Device) {
	for lvl := 1; lvl <= device.MaxLevel; lvl++ {
		level := &b.levels[lvl]
		for slot := 0; slot <= device.MaxSlot; slot++ {
			if req := level.slots[slot]; req != nil && req.dev == dev {
				req.pending = false
				level.slotMask &^= 1 << uint(slot)
			}
		}
	}
}

// InterruptPending reports whether any request above the given CPU
// priority is outstanding.
func (b *Bus) InterruptPending(cpuLevel int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for lvl := device.MaxLevel; lvl > cpuLevel; lvl-- {
		if b.levels[lvl].slotMask != 0 {
			return true
		}
	}
	return false
}

// AcknowledgeInterrupt grants the highest pending level above the CPU
// priority, lowest slot first, clears the request and returns its
// vector.
func (b *Bus) AcknowledgeInterrupt(cpuLevel int) (uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for lvl := device.MaxLevel; lvl > cpuLevel; lvl-- {
		level := &b.levels[lvl]
		if level.slotMask == 0 {
			continue
		}
		for slot := 0; slot <= device.MaxSlot; slot++ {
			if level.slotMask&(1<<uint(slot)) == 0 {
				continue
			}
			req := level.slots[slot]
			req.pending = false
			level.slotMask &^= 1 << uint(slot)
			return req.vector, true
		}
	}
	return 0, false
}

// SetINIT drives the bus INIT line and tells every installed device.
func (b *Bus) SetINIT(asserted bool) {
	b.mu.Lock()
	b.lineINIT = asserted
	devices := append([]*busDevice{}, b.devices...)
	if asserted {
		// INIT clears pending requests bus-wide.
		for lvl := range b.levels {
			b.levels[lvl] = requestLevel{}
		}
	}
	b.mu.Unlock()

	for _, bd := range devices {
		base := bd.dev.BusDevice()
		if !base.Enabled() {
			continue
		}
		base.Mutex.Lock()
		bd.dev.InitChanged(asserted)
		base.Mutex.Unlock()
	}
}

// PulseINIT asserts and releases INIT, the way a RESET instruction
// does.
func (b *Bus) PulseINIT() {
	b.SetINIT(true)
	b.SetINIT(false)
}

// PowerCycle delivers a DCLO dip: power off, power back on. Devices
// restore reset state on the rising edge.
func (b *Bus) PowerCycle() {
	b.SetPower(device.EdgeNone, device.EdgeRising)
	b.SetPower(device.EdgeNone, device.EdgeFalling)
}

// SetPower distributes ACLO/DCLO edges to every installed device.
func (b *Bus) SetPower(acloEdge, dcloEdge device.Edge) {
	b.mu.Lock()
	switch acloEdge {
	case device.EdgeRising:
		b.lineACLO = true
	case device.EdgeFalling:
		b.lineACLO = false
	}
	switch dcloEdge {
	case device.EdgeRising:
		b.lineDCLO = true
	case device.EdgeFalling:
		b.lineDCLO = false
	}
	devices := append([]*busDevice{}, b.devices...)
	b.mu.Unlock()

	for _, bd := range devices {
		if !bd.dev.BusDevice().Enabled() {
			continue
		}
		b.deliverPower(bd.dev, acloEdge, dcloEdge)
	}
}

func (b *Bus) deliverPower(dev device.Device, acloEdge, dcloEdge device.Edge) {
	base := dev.BusDevice()
	base.Mutex.Lock()
	dev.PowerChanged(acloEdge, dcloEdge)
	base.Mutex.Unlock()
}

// Lines reports the current INIT/DCLO/ACLO state.
func (b *Bus) Lines() (init, dclo, aclo bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lineINIT, b.lineDCLO, b.lineACLO
}
