/*
 * UBone - UNIBUS device base
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
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/qbus11/ubone/emu/register"
	"github.com/qbus11/ubone/util/debug"
)

// Bus cycle types. The PRU counterpart only ever delivers DATI or DATO;
// byte selection travels separately as the access mode.
type Cycle uint8

const (
	DATI Cycle = iota // Host read
	DATO              // Host write
)

// DATO access modes.
type Access uint8

const (
	Word     Access = iota // Full 16 bit write
	ByteLow                // DATOB to bits 0..7
	ByteHigh               // DATOB to bits 8..15
)

// Mask returns the bit selection for an access mode.
func (access Access) Mask() uint16 {
	switch access {
	case ByteLow:
		return 0x00ff
	case ByteHigh:
		return 0xff00
	}
	return 0xffff
}

func (cycle Cycle) String() string {
	if cycle == DATI {
		return "DATI"
	}
	return "DATO"
}

// Edge of a power signal as seen by a device.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

// Levels a device may request interrupts at, and backplane slots within
// one level.
const (
	MaxLevel = 7
	MaxSlot  = 31
)

var (
	ErrAddressConflict  = errors.New("address range already claimed")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Device is what the bus adapter dispatches cycles and signals to.
// Every device embeds a Base carrying its register block and bus
// parameters.
type Device interface {
	// BusDevice exposes the embedded base to the adapter.
	BusDevice() *Base

	// AfterRegisterAccess runs after the bus completed a cycle on an
	// active register. The handshake is still asserted: the handler must
	// not block.
	AfterRegisterAccess(reg *register.Register, cycle Cycle, access Access)

	// PowerChanged reports ACLO/DCLO transitions. A rising DCLO edge is
	// a power-on: the device restores reset state.
	PowerChanged(acloEdge, dcloEdge Edge)

	// InitChanged reports the INIT line. While asserted the device holds
	// reset state.
	InitChanged(asserted bool)
}

// Runner is implemented by devices with a background worker. The worker
// runs on its own goroutine and must watch t.Dying() at every loop
// iteration.
type Runner interface {
	Run(t *tomb.Tomb) error
}

// ParamSetter is implemented by devices with parameters beyond the
// common set handled by Base.SetParam.
type ParamSetter interface {
	SetParam(name, value string) error
}

// Base carries everything the bus adapter needs to know about a device:
// identity, bus geometry, the register block and the mutex that makes
// composite register updates atomic with respect to bus cycles.
type Base struct {
	// Mutex guards the register block and device shadow state. The bus
	// holds it across a cell update plus callback; workers take it for
	// composite updates.
	Mutex sync.Mutex

	DevName  string // Instance name, "ke0"
	TypeName string // Model name, "KE11"
	LogLabel string // Prefix for debug records

	BaseAddr uint32 // Octal, word aligned, inside the I/O page
	Vector   uint16 // Interrupt vector
	Level    int    // Interrupt level 1..7
	Slot     int    // Backplane priority slot

	Registers []register.Register

	DebugMask int

	enabled bool
}

// BusDevice lets embedding devices satisfy the Device interface.
func (base *Base) BusDevice() *Base { return base }

// Enabled reports whether the device is installed on the bus.
func (base *Base) Enabled() bool { return base.enabled }

// SetEnabled is called by the bus adapter on install/uninstall.
func (base *Base) SetEnabled(enabled bool) { base.enabled = enabled }

// Span returns the number of bytes of I/O space the register block
// occupies.
func (base *Base) Span() uint32 {
	return uint32(2 * len(base.Registers))
}

// SetupRegisters allocates the register block and assigns indices.
func (base *Base) SetupRegisters(count int) {
	base.Registers = make([]register.Register, count)
	for i := range base.Registers {
		base.Registers[i].Index = i
	}
}

// RegisterByName finds a register by label, nil if absent.
func (base *Base) RegisterByName(name string) *register.Register {
	for i := range base.Registers {
		if strings.EqualFold(base.Registers[i].Name, name) {
			return &base.Registers[i]
		}
	}
	return nil
}

// RegisterByAddr finds the register at a bus address, nil if outside
// the block.
func (base *Base) RegisterByAddr(addr uint32) *register.Register {
	if addr < base.BaseAddr || addr >= base.BaseAddr+base.Span() {
		return nil
	}
	return &base.Registers[(addr-base.BaseAddr)/2]
}

// ResetRegisters writes the reset value into every register. Helper for
// INIT and power-on.
func (base *Base) ResetRegisters() {
	for i := range base.Registers {
		base.Registers[i].Reset()
	}
}

// SetParam handles the common parameter set. Bus geometry is rejected
// while the device is installed; disable the device first to unlock it.
func (base *Base) SetParam(name, value string) error {
	switch strings.ToLower(name) {
	case "name":
		if value == "" {
			return fmt.Errorf("%w: name must not be empty", ErrInvalidParameter)
		}
		base.DevName = value

	case "base":
		if base.enabled {
			return fmt.Errorf("%w: base address locked while device enabled", ErrInvalidParameter)
		}
		addr, err := strconv.ParseUint(value, 8, 22)
		if err != nil || addr&1 != 0 {
			return fmt.Errorf("%w: bad base address %q", ErrInvalidParameter, value)
		}
		base.BaseAddr = uint32(addr)

	case "vector":
		if base.enabled {
			return fmt.Errorf("%w: vector locked while device enabled", ErrInvalidParameter)
		}
		vec, err := strconv.ParseUint(value, 8, 9)
		if err != nil || vec&3 != 0 {
			return fmt.Errorf("%w: bad vector %q", ErrInvalidParameter, value)
		}
		base.Vector = uint16(vec)

	case "level":
		if base.enabled {
			return fmt.Errorf("%w: level locked while device enabled", ErrInvalidParameter)
		}
		lvl, err := strconv.Atoi(value)
		if err != nil || lvl < 1 || lvl > MaxLevel {
			return fmt.Errorf("%w: bad level %q", ErrInvalidParameter, value)
		}
		base.Level = lvl

	case "slot":
		if base.enabled {
			return fmt.Errorf("%w: slot locked while device enabled", ErrInvalidParameter)
		}
		slot, err := strconv.Atoi(value)
		if err != nil || slot < 0 || slot > MaxSlot {
			return fmt.Errorf("%w: bad slot %q", ErrInvalidParameter, value)
		}
		base.Slot = slot

	case "debug":
		mask := 0
		for _, opt := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '|' }) {
			bit, ok := debug.MaskNames[strings.ToUpper(opt)]
			if !ok {
				return fmt.Errorf("%w: unknown debug option %q", ErrInvalidParameter, opt)
			}
			mask |= bit
		}
		base.DebugMask = mask

	default:
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
	}
	return nil
}

// LogRegisters writes a mask-gated record of the register block to the
// debug file. Active registers print as dati/dato pairs.
func (base *Base) LogRegisters(changeInfo string, changed *register.Register) {
	if base.DebugMask&debug.DebugRegister == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(changeInfo)
	if changed != nil {
		sb.WriteByte(' ')
		sb.WriteString(changed.Name)
	}
	sb.WriteByte(':')

	if len(base.Registers) <= 8 {
		for i := range base.Registers {
			reg := &base.Registers[i]
			if reg.ActiveOnDATI || reg.ActiveOnDATO {
				fmt.Fprintf(&sb, " %s=%06o/%06o", reg.Name, reg.Read(), reg.DATOValue())
			} else {
				fmt.Fprintf(&sb, " %s=%06o", reg.Name, reg.Read())
			}
		}
	} else if changed != nil {
		fmt.Fprintf(&sb, " %s=%06o", changed.Name, changed.Read())
	}
	debug.Debugf(base.LogLabel, base.DebugMask, debug.DebugRegister, "%s", sb.String())
}

// ResourceInfo renders the device's bus footprint for the console.
func (base *Base) ResourceInfo() string {
	var sb strings.Builder
	switch len(base.Registers) {
	case 0:
	case 1:
		fmt.Fprintf(&sb, "addr %06o", base.BaseAddr)
	default:
		fmt.Fprintf(&sb, "addr %06o-%06o (%d regs)", base.BaseAddr,
			base.BaseAddr+base.Span()-2, len(base.Registers))
	}
	fmt.Fprintf(&sb, ", slot %d", base.Slot)
	if base.Vector != 0 {
		fmt.Fprintf(&sb, ", INTR %d/%03o", base.Level, base.Vector)
	}
	if base.enabled {
		sb.WriteString(", enabled")
	} else {
		sb.WriteString(", disabled")
	}
	return sb.String()
}
