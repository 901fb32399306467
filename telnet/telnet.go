/*
 * UBone - Telnet server
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
 * Minimal server side of the telnet protocol: character mode is
 * negotiated, option traffic is answered or refused, everything else
 * passes through to the attached terminal device.
 */

package telnet

import (
	"net"
)

// Telnet protocol bytes.
const (
	tnSE   = 240 // Subnegotiation end
	tnSB   = 250 // Subnegotiation begin
	tnWILL = 251
	tnWONT = 252
	tnDO   = 253
	tnDONT = 254
	tnIAC  = 255

	optEcho     = 1
	optSGA      = 3 // Suppress go ahead
	optLinemode = 34
)

// Terminal is implemented by devices fed from a telnet line.
type Terminal interface {
	Connect(conn net.Conn)
	Disconnect()
	ReceiveChar(data []byte)
}

// Sent on connect: we echo, we suppress go-ahead, the client should
// too. Puts common clients into character mode.
var initString = []byte{
	tnIAC, tnWILL, optEcho,
	tnIAC, tnWILL, optSGA,
	tnIAC, tnDO, optSGA,
}

// Protocol decode state per connection.
const (
	stateData = iota // Passing characters
	stateIAC         // Seen IAC
	stateOpt         // Seen WILL/WONT/DO/DONT, option byte follows
	stateSubNeg      // Inside subnegotiation, until IAC SE
	stateSubIAC      // Seen IAC inside subnegotiation
)

type tnState struct {
	conn  net.Conn
	term  Terminal
	state int
	verb  byte // Pending WILL/WONT/DO/DONT
}

// sendOption answers one option request.
func (state *tnState) sendOption(verb, option byte) {
	_, _ = state.conn.Write([]byte{tnIAC, verb, option})
}

// process decodes a chunk of client input, forwarding data bytes to
// the terminal.
func (state *tnState) process(buffer []byte) {
	data := make([]byte, 0, len(buffer))

	for _, by := range buffer {
		switch state.state {
		case stateData:
			if by == tnIAC {
				state.state = stateIAC
			} else if by != 0 { // Drop NUL padding after CR
				data = append(data, by)
			}

		case stateIAC:
			switch by {
			case tnIAC:
				// Escaped 0377 data byte.
				data = append(data, by)
				state.state = stateData
			case tnWILL, tnWONT, tnDO, tnDONT:
				state.verb = by
				state.state = stateOpt
			case tnSB:
				state.state = stateSubNeg
			default:
				state.state = stateData
			}

		case stateOpt:
			state.handleOption(state.verb, by)
			state.state = stateData

		case stateSubNeg:
			if by == tnIAC {
				state.state = stateSubIAC
			}

		case stateSubIAC:
			if by == tnSE {
				state.state = stateData
			} else {
				state.state = stateSubNeg
			}
		}
	}

	if len(data) != 0 {
		state.term.ReceiveChar(data)
	}
}

// handleOption accepts the options we offered and refuses the rest.
func (state *tnState) handleOption(verb, option byte) {
	switch verb {
	case tnDO:
		// Client asks us to enable an option.
		switch option {
		case optEcho, optSGA:
			// Already announced, nothing to send.
		default:
			state.sendOption(tnWONT, option)
		}

	case tnWILL:
		// Client offers an option.
		switch option {
		case optSGA:
			// Accepted by our initial DO.
		case optLinemode:
			state.sendOption(tnDONT, option)
		default:
			state.sendOption(tnDONT, option)
		}

	case tnDONT, tnWONT:
		// Nothing to withdraw.
	}
}
