/*
 * UBone - UNIBUS device register cell
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

package register

import "sync/atomic"

// One 16 bit device register as seen from the bus. The DATI latch holds
// what the host reads, the DATO latch holds what the host last wrote.
// The two latches are independent: device logic publishes results through
// DeviceWrite and observes host writes through DATOValue. During a DATO
// cycle the DATO latch can flicker concurrently with the device callback,
// so devices never read the DATI latch to observe a write.
type Register struct {
	Name         string // Short register label, "AC", "SSR", ...
	Index        int    // Position in the device block, offset = 2*Index
	ResetValue   uint16
	WritableBits uint16 // Mask of bits the bus may modify
	ActiveOnDATI bool   // DATI triggers the device callback
	ActiveOnDATO bool   // DATO triggers the device callback

	dati atomic.Uint32 // Value seen by host DATI cycles
	dato atomic.Uint32 // Last value written by host DATO cycles
}

// Read returns the value the host sees on a DATI cycle.
func (reg *Register) Read() uint16 {
	return uint16(reg.dati.Load())
}

// DeviceWrite publishes a value for following DATI cycles. Device side
// only, no writable-bit masking.
func (reg *Register) DeviceWrite(value uint16) {
	reg.dati.Store(uint32(value))
}

// DATOValue returns the last host-written value of the register.
func (reg *Register) DATOValue() uint16 {
	return uint16(reg.dato.Load())
}

// BusWrite merges a host DATO into the DATO latch. Only bits selected by
// both the writable mask and the byte-access mask change.
func (reg *Register) BusWrite(value uint16, accessMask uint16) {
	mask := reg.WritableBits & accessMask
	old := uint16(reg.dato.Load())
	reg.dato.Store(uint32((old &^ mask) | (value & mask)))
}

// Reset returns both latches to the reset value.
func (reg *Register) Reset() {
	reg.dati.Store(uint32(reg.ResetValue))
	reg.dato.Store(uint32(reg.ResetValue))
}
