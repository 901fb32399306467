/*
 * UBone - Operator console
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
 * Interactive shell playing the host CPU: examine and deposit issue
 * real bus cycles, init and power drive the bus signals.
 */

package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/peterh/liner"

	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/emu/device"
)

const historyFile = ".ubone_history"

// Console runs the operator command loop against one bus.
type Console struct {
	b    *bus.Bus
	line *liner.State
}

type cmdFunc func(c *Console, args []string) (bool, error)

type cmdDef struct {
	fn   cmdFunc
	help string
}

var commands map[string]cmdDef

// Filled here because cmdHelp walks the table.
func init() {
	commands = map[string]cmdDef{
		"show":    {cmdShow, "show [device] - list devices or one device"},
		"set":     {cmdSet, "set <device> <param> <value> - change a device parameter"},
		"examine": {cmdExamine, "examine <octal addr> - DATI cycle"},
		"deposit": {cmdDeposit, "deposit <octal addr> <octal value> [b|h] - DATO cycle"},
		"init":    {cmdInit, "init - pulse bus INIT"},
		"power":   {cmdPower, "power - DCLO power cycle"},
		"enable":  {cmdEnable, "enable <device> - install device on the bus"},
		"disable": {cmdDisable, "disable <device> - remove device from the bus"},
		"intr":    {cmdIntr, "intr [cpulevel] - acknowledge highest pending interrupt"},
		"dump":    {cmdDump, "dump <device> - dump device state"},
		"help":    {cmdHelp, "help - this list"},
		"quit":    {cmdQuit, "quit - shut down"},
	}
}

// New builds a console for a bus.
func New(b *bus.Bus) *Console {
	return &Console{b: b}
}

// Run reads and executes commands until quit or EOF.
func (c *Console) Run() error {
	c.line = liner.NewLiner()
	defer c.line.Close()
	c.line.SetCtrlCAborts(true)
	c.line.SetCompleter(c.complete)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		text, err := c.line.Prompt("ubone> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			return nil // EOF
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		c.line.AppendHistory(text)

		quit, err := c.execute(text)
		if err != nil {
			fmt.Println(err)
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) execute(text string) (bool, error) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])

	match, err := matchCommand(name)
	if err != nil {
		return false, err
	}
	return commands[match].fn(c, fields[1:])
}

// matchCommand resolves unique prefixes, "ex" for examine; a prefix
// shared by several commands, such as "e", is an error.
func matchCommand(name string) (string, error) {
	if _, ok := commands[name]; ok {
		return name, nil
	}
	found := ""
	for cmd := range commands {
		if strings.HasPrefix(cmd, name) {
			if found != "" {
				return "", fmt.Errorf("ambiguous command %q", name)
			}
			found = cmd
		}
	}
	if found == "" {
		return "", fmt.Errorf("unknown command %q", name)
	}
	return found, nil
}

// complete offers command names, then device names.
func (c *Console) complete(text string) []string {
	fields := strings.Split(text, " ")
	var out []string
	if len(fields) <= 1 {
		for cmd := range commands {
			if strings.HasPrefix(cmd, strings.ToLower(fields[0])) {
				out = append(out, cmd)
			}
		}
		return out
	}
	last := fields[len(fields)-1]
	prefix := strings.Join(fields[:len(fields)-1], " ") + " "
	for _, dev := range c.b.Devices() {
		name := dev.BusDevice().DevName
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(last)) {
			out = append(out, prefix+name)
		}
	}
	return out
}

func (c *Console) findDevice(name string) (device.Device, error) {
	dev := c.b.FindDevice(name)
	if dev == nil {
		return nil, fmt.Errorf("no device %q", name)
	}
	return dev, nil
}

func cmdShow(c *Console, args []string) (bool, error) {
	if len(args) > 0 {
		dev, err := c.findDevice(args[0])
		if err != nil {
			return false, err
		}
		base := dev.BusDevice()
		fmt.Printf("%s (%s): %s\n", base.DevName, base.TypeName, base.ResourceInfo())
		for i := range base.Registers {
			reg := &base.Registers[i]
			fmt.Printf("  %06o %-5s %06o\n", base.BaseAddr+uint32(2*i), reg.Name, reg.Read())
		}
		return false, nil
	}
	for _, dev := range c.b.Devices() {
		base := dev.BusDevice()
		fmt.Printf("%-8s %-6s %s\n", base.DevName, base.TypeName, base.ResourceInfo())
	}
	return false, nil
}

func cmdSet(c *Console, args []string) (bool, error) {
	if len(args) != 3 {
		return false, errors.New("usage: set <device> <param> <value>")
	}
	dev, err := c.findDevice(args[0])
	if err != nil {
		return false, err
	}
	if setter, ok := dev.(device.ParamSetter); ok {
		return false, setter.SetParam(args[1], args[2])
	}
	return false, dev.BusDevice().SetParam(args[1], args[2])
}

func cmdExamine(c *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("usage: examine <octal addr>")
	}
	addr, err := strconv.ParseUint(args[0], 8, 22)
	if err != nil {
		return false, fmt.Errorf("bad address %q", args[0])
	}
	value, ok := c.b.DATI(uint32(addr))
	if !ok {
		return false, fmt.Errorf("%06o: bus timeout", addr)
	}
	fmt.Printf("%06o: %06o\n", addr, value)
	return false, nil
}

func cmdDeposit(c *Console, args []string) (bool, error) {
	if len(args) < 2 || len(args) > 3 {
		return false, errors.New("usage: deposit <octal addr> <octal value> [b|h]")
	}
	addr, err := strconv.ParseUint(args[0], 8, 22)
	if err != nil {
		return false, fmt.Errorf("bad address %q", args[0])
	}
	value, err := strconv.ParseUint(args[1], 8, 16)
	if err != nil {
		return false, fmt.Errorf("bad value %q", args[1])
	}
	access := device.Word
	if len(args) == 3 {
		switch strings.ToLower(args[2]) {
		case "b", "l":
			access = device.ByteLow
		case "h":
			access = device.ByteHigh
		default:
			return false, fmt.Errorf("bad access %q", args[2])
		}
	}
	if !c.b.DATO(uint32(addr), uint16(value), access) {
		return false, fmt.Errorf("%06o: bus timeout", addr)
	}
	return false, nil
}

func cmdInit(c *Console, _ []string) (bool, error) {
	c.b.PulseINIT()
	return false, nil
}

func cmdPower(c *Console, _ []string) (bool, error) {
	c.b.PowerCycle()
	return false, nil
}

func cmdEnable(c *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("usage: enable <device>")
	}
	dev, err := c.findDevice(args[0])
	if err != nil {
		return false, err
	}
	return false, c.b.Install(dev)
}

func cmdDisable(c *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("usage: disable <device>")
	}
	dev, err := c.findDevice(args[0])
	if err != nil {
		return false, err
	}
	c.b.Uninstall(dev)
	return false, nil
}

func cmdIntr(c *Console, args []string) (bool, error) {
	cpuLevel := 0
	if len(args) > 0 {
		lvl, err := strconv.Atoi(args[0])
		if err != nil || lvl < 0 || lvl > device.MaxLevel {
			return false, fmt.Errorf("bad level %q", args[0])
		}
		cpuLevel = lvl
	}
	vector, ok := c.b.AcknowledgeInterrupt(cpuLevel)
	if !ok {
		fmt.Println("no interrupt pending")
		return false, nil
	}
	fmt.Printf("interrupt vector %03o\n", vector)
	return false, nil
}

func cmdDump(c *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("usage: dump <device>")
	}
	dev, err := c.findDevice(args[0])
	if err != nil {
		return false, err
	}
	spew.Dump(dev)
	return false, nil
}

func cmdHelp(_ *Console, _ []string) (bool, error) {
	for _, def := range commands {
		fmt.Println(" ", def.help)
	}
	return false, nil
}

func cmdQuit(_ *Console, _ []string) (bool, error) {
	return true, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}
