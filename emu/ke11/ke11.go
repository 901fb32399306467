/*
 * UBone - KE11 Extended Arithmetic Element
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
 * Numeric coprocessor with signed multiply, divide, normalize and
 * shifts over the 32 bit AC:MQ pair. Writing an operation register
 * performs the operation; AC, MQ and SC/SR hold state between
 * operations. The arithmetic follows the KE11-A, two's complement with
 * wrap on overflow.
 */

package ke11

import (
	"fmt"

	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
	"github.com/qbus11/ubone/emu/register"
)

// Register block, offsets 0..16.
const (
	regDIV  = iota // Write starts divide
	regAC          // Accumulator
	regMQ          // Multiplier/quotient
	regMUL         // Write starts multiply
	regSCSR        // Shift count / status
	regNOR         // Write starts normalize, reads SC
	regLSH         // Write starts logical shift
	regASH         // Write starts arithmetic shift
)

// SR bits, high byte of SCSR.
const (
	srC    = 0o001 // Carry
	srSXT  = 0o002 // AC is the sign extension of MQ
	srZ    = 0o004 // AC = MQ = 0
	srMQZ  = 0o010 // MQ = 0
	srACZ  = 0o020 // AC = 0
	srACM1 = 0o040 // AC = 177777
	srN    = 0o100 // Result negative
	srNXV  = 0o200 // Overflow

	srDyn = srSXT | srZ | srMQZ | srACZ | srACM1
)

const dmask = 0xffff

// Default bus geometry.
const (
	defaultBase   = 0o777300
	defaultVector = 0o010
	defaultLevel  = 5
)

// KE11 holds the accumulator state between operations. The register
// latches mirror it; operations always work from the shadow so a
// multiply's result feeds the next divide even when the host never
// rewrites AC.
type KE11 struct {
	device.Base

	ac uint16
	mq uint16
	sc uint16 // Shift counter, 0..63
	sr uint16 // Status byte
}

// New builds a KE11 at the given base address, 0 for the default.
func New(baseAddr uint32) *KE11 {
	ke := &KE11{}
	ke.DevName = "ke0"
	ke.TypeName = "KE11"
	ke.LogLabel = "ke"
	ke.BaseAddr = defaultBase
	if baseAddr != 0 {
		ke.BaseAddr = baseAddr
	}
	ke.Vector = defaultVector
	ke.Level = defaultLevel

	ke.SetupRegisters(8)
	setup := []struct {
		name     string
		dati     bool
		dato     bool
		writable uint16
	}{
		{"DIV", true, true, 0o177777},
		{"AC", false, true, 0o177777},
		{"MQ", false, true, 0o177777},
		{"MUL", true, true, 0o177777},
		{"SCSR", true, true, 0o177777},
		{"NOR", false, true, 0},
		{"LSH", true, true, 0o177777},
		{"ASH", true, true, 0o177777},
	}
	for i, s := range setup {
		reg := &ke.Registers[i]
		reg.Name = s.name
		reg.ActiveOnDATI = s.dati
		reg.ActiveOnDATO = s.dato
		reg.WritableBits = s.writable
	}
	return ke
}

// Bus cycle on an active register. Runs with the device mutex held and
// the bus handshake asserted.
func (ke *KE11) AfterRegisterAccess(reg *register.Register, cycle device.Cycle, access device.Access) {
	if cycle == device.DATI {
		ke.readRegister(reg)
	} else {
		ke.writeRegister(reg, access)
	}
}

func (ke *KE11) readRegister(reg *register.Register) {
	switch reg.Index {
	case regSCSR:
		// Recompute the dynamic bits before the host samples.
		ke.sr = setSR(ke.ac, ke.mq, ke.sr)
		reg.DeviceWrite(ke.sr<<8 | (ke.sc & 0xff))

	default:
		// Operation registers read as 0.
		reg.DeviceWrite(0)
	}
}

func (ke *KE11) writeRegister(reg *register.Register, access device.Access) {
	switch reg.Index {
	case regDIV:
		ke.divide(signExtendByte(reg.DATOValue(), access))

	case regAC:
		ke.ac = signExtendByte(reg.DATOValue(), access)
		ke.commit(ke.sc, ke.sr)

	case regMQ:
		ke.mq = signExtendByte(reg.DATOValue(), access)
		// AC becomes the sign extension of MQ.
		if signWord(ke.mq) != 0 {
			ke.ac = 0o177777
		} else {
			ke.ac = 0
		}
		ke.commit(ke.sc, ke.sr)

	case regMUL:
		ke.multiply(signExtendByte(reg.DATOValue(), access))

	case regSCSR:
		// Word writes only; N, NXV, C and the SC byte are loadable.
		if access == device.Word {
			value := reg.DATOValue() & (((srNXV | srN | srC) << 8) | 0xff)
			ke.sr = value >> 8
			ke.sc = value & 0xff
			ke.Registers[regSCSR].DeviceWrite(value)
			ke.Registers[regNOR].DeviceWrite(value & 0xff)
		}

	case regNOR:
		ke.normalize()

	case regLSH:
		ke.shift(reg.DATOValue(), false)

	case regASH:
		ke.shift(reg.DATOValue(), true)
	}
}

// multiply forms AC:MQ = MQ * mul as signed 16x16 -> 32.
func (ke *KE11) multiply(mul uint16) {
	t := int32(int16(ke.mq)) * int32(int16(mul))
	ke.ac = uint16(t>>16) & dmask
	ke.mq = uint16(t) & dmask

	var sr uint16
	if signWord(ke.ac) != 0 { // result negative?
		sr = srN | srNXV // N = 1, NXV = 1, C = 0
	}
	ke.commit(0, sr)
}

// divide computes MQ = AC:MQ / div, AC = remainder. When the quotient
// would not fit 16 bits the hardware clocks the divide loop exactly
// once and gives up with SC = 15.
func (ke *KE11) divide(div16 uint16) {
	div := int32(int16(div16))
	t := int32(uint32(ke.ac)<<16 | uint32(ke.mq))

	absd := uint32(t)
	if t < 0 {
		absd = uint32(-t)
	}
	absr := uint32(div)
	if div < 0 {
		absr = uint32(-div)
	}

	var sr, sc uint16
	if (absd >> 16) >= absr { // divide fails?
		sign := signWord(ke.ac^div16) ^ 1 // 1 if signs match
		ac := (ke.ac << 1) | (ke.mq >> 15)
		if sign != 0 {
			ac = (ac - div16) & dmask
		} else {
			ac = (ac + div16) & dmask
		}
		ke.mq = ((ke.mq << 1) | sign) & dmask
		ke.ac = ac
		if signWord(ac^div16) == 0 { // 0 if signs match
			sr |= srC
		}
		sc = 15 // SC clocked once
		sr |= srNXV
	} else {
		quo := t / div
		ke.mq = uint16(quo) & dmask   // MQ has quotient
		ke.ac = uint16(t%div) & dmask // AC has remainder
		if quo > 32767 || quo < -32768 {
			sr |= srNXV
		}
	}

	if signWord(ke.mq) != 0 { // result negative?
		sr ^= srN | srNXV // N = 1, complement NXV
	}
	ke.commit(sc, sr)
}

// normalize shifts AC:MQ left until bits 15 and 14 of AC differ or
// AC:MQ holds 140000:000000, at most 31 steps. SC counts the steps.
func (ke *KE11) normalize() {
	ac := ke.ac
	mq := ke.mq

	var sc uint16
	for sc = 0; sc < 31; sc++ {
		if (ac == 0o140000 && mq == 0) || signWord(ac^(ac<<1)) != 0 {
			break
		}
		ac = ((ac << 1) | (mq >> 15)) & dmask
		mq = (mq << 1) & dmask
	}

	var sr uint16
	if signWord(ac) != 0 {
		sr = srN | srNXV
	}
	ke.ac = ac
	ke.mq = mq
	ke.commit(sc, sr)
}

// shift moves AC:MQ by the low 6 bits of the count register: 1..31
// left, 32..63 right by 64-n. The arithmetic variant keeps AC's sign
// bit on left shifts and replicates it on right shifts.
func (ke *KE11) shift(count uint16, arithmetic bool) {
	n := uint(count & 0o77)
	var sr uint16

	if n != 0 {
		t := int32(uint32(ke.ac)<<16 | uint32(ke.mq))
		sign := int32(signWord(ke.ac))

		if n < 32 { // [1,31] - left
			var sout int32
			if arithmetic {
				sout = (t >> (31 - n)) | (-sign << n)
				t = int32((uint32(t) & 0x80000000) | ((uint32(t) << n) & 0x7fffffff))
			} else {
				sout = (t >> (32 - n)) | (-sign << n)
				t = int32(uint32(t) << n)
			}
			lost := int32(0)
			if signLong(t) != 0 {
				lost = -1
			}
			if sout != lost { // bits lost != sign extension?
				sr |= srNXV
			}
			if sout&1 != 0 { // last bit lost = 1?
				sr |= srC
			}
		} else { // [32,63] = right by 64-n
			if (t>>(63-n))&1 != 0 { // last bit lost = 1?
				sr |= srC
			}
			switch {
			case n == 32 && arithmetic:
				t = -sign
			case n == 32:
				t = 0
			case arithmetic:
				t = int32((uint32(t) >> (64 - n)) | (uint32(-sign) << (n - 32)))
			default:
				t = int32(uint32(t) >> (64 - n))
			}
		}

		ke.ac = uint16(uint32(t)>>16) & dmask
		ke.mq = uint16(t) & dmask
	}

	if signWord(ke.ac) != 0 { // result negative?
		sr ^= srN | srNXV // N = 1, complement NXV
	}
	ke.commit(0, sr)
}

// commit publishes the accumulator state. The dynamic SR bits are
// recomputed from AC and MQ on every operation.
func (ke *KE11) commit(sc, sr uint16) {
	ke.sc = sc
	ke.sr = setSR(ke.ac, ke.mq, sr)
	ke.Registers[regAC].DeviceWrite(ke.ac)
	ke.Registers[regMQ].DeviceWrite(ke.mq)
	ke.Registers[regSCSR].DeviceWrite(ke.sr<<8 | (ke.sc & 0xff))
	ke.Registers[regNOR].DeviceWrite(ke.sc & 0xff)
}

// setSR recomputes the dynamic status bits; N, NXV and C pass through.
func setSR(ac, mq, sr uint16) uint16 {
	sr &^= srDyn
	if mq == 0 {
		sr |= srMQZ
	}
	if ac == 0 {
		sr |= srACZ
		if signWord(mq) == 0 {
			sr |= srSXT
		}
		if mq == 0 {
			sr |= srZ
		}
	}
	if ac == 0o177777 {
		sr |= srACM1
		if signWord(mq) == 1 {
			sr |= srSXT
		}
	}
	return sr
}

// signExtendByte widens a byte-low write with the byte sign set.
func signExtendByte(value uint16, access device.Access) uint16 {
	if access == device.ByteLow && value&0x80 != 0 {
		value |= 0o177400
	}
	return value
}

func signWord(value uint16) uint16 {
	return (value >> 15) & 1
}

func signLong(value int32) uint32 {
	return (uint32(value) >> 31) & 1
}

// AC returns the accumulator, for the console dump.
func (ke *KE11) AC() uint16 { return ke.ac }

// MQ returns the multiplier/quotient register.
func (ke *KE11) MQ() uint16 { return ke.mq }

// Power-on restores reset state on the rising DCLO edge.
func (ke *KE11) PowerChanged(_, dcloEdge device.Edge) {
	if dcloEdge == device.EdgeRising {
		ke.reset()
	}
}

// INIT clears all registers.
func (ke *KE11) InitChanged(asserted bool) {
	if asserted {
		ke.reset()
	}
}

func (ke *KE11) reset() {
	ke.ResetRegisters()
	ke.ac = 0
	ke.mq = 0
	ke.sc = 0
	ke.sr = 0
}

// register the model on initialize.
func init() {
	config.RegisterModel("KE11", config.TypeModel, create)
}

// Create a KE11 from a config stanza.
func create(b *bus.Bus, addr uint32, options []config.Option) error {
	ke := New(addr)
	for _, option := range options {
		if err := ke.SetParam(option.Name, option.EqualOpt); err != nil {
			return fmt.Errorf("KE11: %w", err)
		}
	}
	return b.Install(ke)
}
