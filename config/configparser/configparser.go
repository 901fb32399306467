/*
 * UBone - Configuration file parser
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

package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/qbus11/ubone/emu/bus"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <model> <whitespace> <octal address> *(<option>) |
 *           <optname> <whitespace> <quoteopt> |
 *           <switchname>
 * <option> ::= <name> | <name> '=' <quoteopt> | <name> *(',' <string>)
 * <quoteopt> ::= <string> | '"' *(<letter> | <whitespace>) '"'
 *
 * Device stanzas name a registered model and its octal base address:
 *
 *   KE11  777300
 *   DH11  760020  vector=340 level=5 port=2301
 */

// Option holds one parsed `name`, `name=value` or `name,a,b` group.
type Option struct {
	Name     string   // Option name.
	EqualOpt string   // Value of string after =.
	Value    []string // Comma list following the name.
}

// Stanza kinds.
const (
	TypeModel  = 1 + iota // Device: octal address plus options.
	TypeOption            // Single value option, e.g. a file name.
	TypeSwitch            // Bare flag.
)

// CreateFunc builds a device (or applies an option) when its stanza is
// read. For TypeOption/TypeSwitch stanzas addr is 0 and the value
// arrives as the EqualOpt of a synthetic option.
type CreateFunc func(b *bus.Bus, addr uint32, options []Option) error

type modelDef struct {
	create CreateFunc
	ty     int
}

var models = map[string]modelDef{}

var lineNumber int

// Current option line being parsed.
type optionLine struct {
	line string
	pos  int
}

// RegisterModel is called from device package init functions.
func RegisterModel(mod string, ty int, fn CreateFunc) {
	models[strings.ToUpper(mod)] = modelDef{create: fn, ty: ty}
}

// LoadConfigFile reads a configuration file and instantiates every
// stanza against the given bus.
func LoadConfigFile(name string, b *bus.Bus) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return Load(file, b)
}

// Load parses configuration text from a reader.
func Load(r io.Reader, b *bus.Bus) error {
	lineNumber = 0
	reader := bufio.NewReader(r)
	for {
		var err error

		line := optionLine{}
		line.line, err = reader.ReadString('\n')
		lineNumber++
		if len(line.line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := line.parseLine(b); err != nil {
			return err
		}
	}
	return nil
}

// Parse one line from the file.
func (line *optionLine) parseLine(b *bus.Bus) error {
	line.skipSpace()
	if line.isEOL() {
		return nil
	}

	name, err := line.getName()
	if err != nil {
		return err
	}
	name = strings.ToUpper(name)
	model, ok := models[name]
	if !ok {
		return fmt.Errorf("unknown model %s, line %d", name, lineNumber)
	}

	switch model.ty {
	case TypeModel:
		line.skipSpace()
		addrText, err := line.getName()
		if err != nil || addrText == "" {
			return fmt.Errorf("device %s requires an octal base address, line %d", name, lineNumber)
		}
		addr, err := strconv.ParseUint(addrText, 8, 22)
		if err != nil {
			return fmt.Errorf("device %s: bad base address %q, line %d", name, addrText, lineNumber)
		}
		options, err := line.parseOptions()
		if err != nil {
			return err
		}
		return model.create(b, uint32(addr), options)

	case TypeOption:
		line.skipSpace()
		line.pos-- // parseQuoteString starts on the char before the value
		value, ok := line.parseQuoteString()
		if !ok || value == "" {
			return fmt.Errorf("option %s not followed by value, line %d", name, lineNumber)
		}
		line.skipSpace()
		if !line.isEOL() {
			return fmt.Errorf("option %s takes a single value, line %d", name, lineNumber)
		}
		return model.create(b, 0, []Option{{Name: name, EqualOpt: value}})

	case TypeSwitch:
		line.skipSpace()
		if !line.isEOL() {
			return fmt.Errorf("switch %s followed by options, line %d", name, lineNumber)
		}
		return model.create(b, 0, nil)
	}
	return nil
}

// Skip forward until a none whitespace character.
func (line *optionLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line or start of comment.
func (line *optionLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// Return next letter or digit in line. 0 if EOL or other character.
func (line *optionLine) getNext() byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) {
		return by
	}
	return 0
}

// Peek at next character.
func (line *optionLine) getPeek() byte {
	if (line.pos + 1) >= len(line.line) {
		return 0
	}
	return line.line[line.pos+1]
}

// Parse string that is "string" or just string. On entry the position
// is on the character before the value. Unquoted values run to
// whitespace, comma or comment and end on that terminator; quoted
// values end just past the closing quote.
func (line *optionLine) parseQuoteString() (string, bool) {
	inQuote := false
	value := ""

	if line.getPeek() == '"' {
		inQuote = true
		line.pos++
	}

	for {
		line.pos++
		if line.pos >= len(line.line) {
			return value, !inQuote
		}
		by := line.line[line.pos]

		if inQuote {
			if by == '"' {
				// "" stands for one literal quote.
				if line.getPeek() == '"' {
					line.pos++
					value += `"`
					continue
				}
				line.pos++
				return value, true
			}
			if by == '\n' || by == '\r' {
				return value, false
			}
			value += string(by)
			continue
		}

		if by == ',' || by == '#' || unicode.IsSpace(rune(by)) {
			return value, true
		}
		value += string(by)
	}
}

// Parse an option or model name: letters and digits.
func (line *optionLine) getName() (string, error) {
	if line.isEOL() {
		return "", nil
	}
	by := line.line[line.pos]
	if !unicode.IsLetter(rune(by)) && !unicode.IsNumber(rune(by)) {
		return "", fmt.Errorf("invalid option encountered line %d [%d]", lineNumber, line.pos)
	}
	value := ""
	for {
		value += string(by)
		by = line.getNext()
		if by == 0 {
			break
		}
	}
	return value, nil
}

// Parse one option group.
func (line *optionLine) parseOption() (*Option, error) {
	line.skipSpace()

	value, err := line.getName()
	if value == "" {
		return nil, err
	}

	option := Option{Name: value}
	if line.isEOL() {
		return &option, nil
	}

	if line.line[line.pos] == '=' {
		v, ok := line.parseQuoteString()
		if !ok {
			return nil, fmt.Errorf("invalid quoted string line %d [%d]", lineNumber, line.pos)
		}
		option.EqualOpt = v
		return &option, nil
	}

	line.skipSpace()
	for !line.isEOL() && line.line[line.pos] == ',' {
		line.pos++
		line.skipSpace()
		v, err := line.getName()
		if err != nil {
			return nil, err
		}
		if v != "" {
			option.Value = append(option.Value, v)
		}
		line.skipSpace()
	}
	return &option, nil
}

// Collect all options on the line.
func (line *optionLine) parseOptions() ([]Option, error) {
	options := []Option{}
	for {
		option, err := line.parseOption()
		if err != nil {
			return nil, err
		}
		if option == nil {
			break
		}
		options = append(options, *option)
	}
	return options, nil
}
