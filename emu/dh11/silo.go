/*
 * UBone - DH11 receive silo
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

const siloDepth = 64

// silo is the 64 word receive FIFO. The hardware shifts entries toward
// slot 0; the bottom word stays readable after the silo drains, which
// is why pop leaves words[0] behavior to the caller.
type silo struct {
	words [siloDepth]uint16
	count int
}

// push appends a word. Caller checks for room.
func (s *silo) push(word uint16) {
	s.words[s.count] = word
	s.count++
}

// pop removes and returns the bottom word, shifting the rest down.
// Caller checks count first.
func (s *silo) pop() uint16 {
	word := s.words[0]
	copy(s.words[:s.count-1], s.words[1:s.count])
	s.count--
	return word
}

func (s *silo) clear() {
	s.count = 0
}
