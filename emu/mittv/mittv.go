/*
 * UBone - MIT TV raster display (stub)
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
 * Register-only placeholder for the MIT raster display console
 * multiplexer. 26 latched registers, no behavior.
 */

package mittv

import (
	"fmt"

	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
	"github.com/qbus11/ubone/emu/register"
)

const (
	defaultBase  = 0o764100
	defaultLevel = 4
	defaultSlot  = 31

	registerCount = 26
)

type TV struct {
	device.Base
}

// New builds the display stub at the given base address, 0 for the
// default.
func New(baseAddr uint32) *TV {
	tv := &TV{}
	tv.DevName = "tv0"
	tv.TypeName = "MITTV"
	tv.LogLabel = "mit_tv"
	tv.BaseAddr = defaultBase
	if baseAddr != 0 {
		tv.BaseAddr = baseAddr
	}
	tv.Level = defaultLevel
	tv.Slot = defaultSlot

	tv.SetupRegisters(registerCount)
	for i := range tv.Registers {
		tv.Registers[i].Name = fmt.Sprintf("CSR%d", i)
		tv.Registers[i].WritableBits = 0o177777
	}
	return tv
}

// No active registers, nothing to do.
func (tv *TV) AfterRegisterAccess(_ *register.Register, _ device.Cycle, _ device.Access) {
}

func (tv *TV) PowerChanged(_, dcloEdge device.Edge) {
	if dcloEdge == device.EdgeRising {
		tv.ResetRegisters()
	}
}

func (tv *TV) InitChanged(asserted bool) {
	if asserted {
		tv.ResetRegisters()
	}
}

// register the model on initialize.
func init() {
	config.RegisterModel("MITTV", config.TypeModel, create)
}

func create(b *bus.Bus, addr uint32, options []config.Option) error {
	tv := New(addr)
	for _, option := range options {
		if err := tv.SetParam(option.Name, option.EqualOpt); err != nil {
			return fmt.Errorf("MITTV: %w", err)
		}
	}
	return b.Install(tv)
}
