/*
 * UBone - Telnet listeners and line multiplexer
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
 * Terminal devices register against a TCP port; each listener hands an
 * accepted connection to the first free terminal on that port.
 */

package telnet

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"gopkg.in/tomb.v2"

	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
)

type termSlot struct {
	term Terminal
	busy bool
}

type portMap struct {
	port      string
	terminals []*termSlot
	listener  net.Listener
	conns     map[net.Conn]struct{}
}

var (
	mapLock     sync.Mutex
	ports       = map[string]*portMap{}
	pending     []Terminal // Terminals waiting for the default port
	defaultPort string
	servers     tomb.Tomb
	started     bool
)

// RegisterTerminal attaches a terminal device to a listen port. An
// empty port uses the default port, resolved when the servers start so
// the PORT stanza may follow the device in the config file.
func RegisterTerminal(term Terminal, port string) error {
	mapLock.Lock()
	defer mapLock.Unlock()

	if port == "" {
		pending = append(pending, term)
		return nil
	}
	registerLocked(term, port)
	return nil
}

func registerLocked(term Terminal, port string) {
	pm, ok := ports[port]
	if !ok {
		pm = &portMap{port: port, conns: map[net.Conn]struct{}{}}
		ports[port] = pm
	}
	pm.terminals = append(pm.terminals, &termSlot{term: term})
}

// Start opens one listener per registered port.
func Start() error {
	mapLock.Lock()
	defer mapLock.Unlock()

	if len(pending) != 0 {
		if defaultPort == "" {
			return errors.New("terminals registered without a port and no PORT set")
		}
		for _, term := range pending {
			registerLocked(term, defaultPort)
		}
		pending = nil
	}

	for _, pm := range ports {
		addr := pm.port
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = ":" + pm.port
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("telnet listen %s: %w", addr, err)
		}
		pm.listener = listener
		slog.Info("telnet listening", "port", pm.port)

		server := pm
		servers.Go(func() error {
			return server.accept()
		})
	}
	started = true
	return nil
}

// Stop closes all listeners and waits for the connection handlers.
func Stop() {
	mapLock.Lock()
	if !started {
		mapLock.Unlock()
		return
	}
	for _, pm := range ports {
		if pm.listener != nil {
			pm.listener.Close()
		}
		for conn := range pm.conns {
			conn.Close()
		}
	}
	started = false
	mapLock.Unlock()

	servers.Kill(nil)
	_ = servers.Wait()
}

func (pm *portMap) accept() error {
	for {
		conn, err := pm.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		slot := pm.claim()
		if slot == nil {
			_, _ = conn.Write([]byte("All lines in use.\r\n"))
			conn.Close()
			continue
		}
		servers.Go(func() error {
			pm.handleClient(conn, slot)
			return nil
		})
	}
}

// claim finds a free terminal on this port.
func (pm *portMap) claim() *termSlot {
	mapLock.Lock()
	defer mapLock.Unlock()
	for _, slot := range pm.terminals {
		if !slot.busy {
			slot.busy = true
			return slot
		}
	}
	return nil
}

func (pm *portMap) release(slot *termSlot) {
	mapLock.Lock()
	slot.busy = false
	mapLock.Unlock()
}

func (pm *portMap) handleClient(conn net.Conn, slot *termSlot) {
	mapLock.Lock()
	pm.conns[conn] = struct{}{}
	mapLock.Unlock()

	defer func() {
		slot.term.Disconnect()
		pm.release(slot)
		conn.Close()
		mapLock.Lock()
		delete(pm.conns, conn)
		mapLock.Unlock()
	}()

	_, _ = conn.Write(initString)
	slot.term.Connect(conn)

	state := &tnState{conn: conn, term: slot.term}
	buffer := make([]byte, 512)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			state.process(buffer[:n])
		}
		if err != nil {
			return
		}
	}
}

// register the default port option on initialize.
func init() {
	config.RegisterModel("PORT", config.TypeOption, setPort)
}

// Set default listen port for terminals without their own.
func setPort(_ *bus.Bus, _ uint32, options []config.Option) error {
	mapLock.Lock()
	defer mapLock.Unlock()
	defaultPort = options[0].EqualOpt
	return nil
}
