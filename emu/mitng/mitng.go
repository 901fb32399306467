/*
 * UBone - MIT Knight vector display (stub)
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
 * Register-only placeholder for the Knight vector display used by the
 * LOGO systems: a CSR and a relocation register. Software can probe
 * the addresses, nothing is drawn.
 */

package mitng

import (
	"fmt"

	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
	"github.com/qbus11/ubone/emu/register"
)

const (
	defaultBase   = 0o764040
	defaultVector = 0o270
	defaultLevel  = 5
)

type NG struct {
	device.Base
}

// New builds the display stub at the given base address, 0 for the
// default.
func New(baseAddr uint32) *NG {
	ng := &NG{}
	ng.DevName = "ng0"
	ng.TypeName = "MITNG"
	ng.LogLabel = "mit_ng"
	ng.BaseAddr = defaultBase
	if baseAddr != 0 {
		ng.BaseAddr = baseAddr
	}
	ng.Vector = defaultVector
	ng.Level = defaultLevel

	ng.SetupRegisters(2)
	ng.Registers[0].Name = "CSR"
	ng.Registers[0].WritableBits = 0o177777
	ng.Registers[1].Name = "REL"
	ng.Registers[1].WritableBits = 0o177777
	return ng
}

// No active registers, nothing to do.
func (ng *NG) AfterRegisterAccess(_ *register.Register, _ device.Cycle, _ device.Access) {
}

func (ng *NG) PowerChanged(_, dcloEdge device.Edge) {
	if dcloEdge == device.EdgeRising {
		ng.ResetRegisters()
	}
}

func (ng *NG) InitChanged(asserted bool) {
	if asserted {
		ng.ResetRegisters()
	}
}

// register the model on initialize.
func init() {
	config.RegisterModel("MITNG", config.TypeModel, create)
}

func create(b *bus.Bus, addr uint32, options []config.Option) error {
	ng := New(addr)
	for _, option := range options {
		if err := ng.SetParam(option.Name, option.EqualOpt); err != nil {
			return fmt.Errorf("MITNG: %w", err)
		}
	}
	return b.Install(ng)
}
