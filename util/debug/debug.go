/*
 * UBone - Log debug data to a file
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

package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Common debug mask bits. Devices may define further bits above
// DebugDevice for their own traffic classes.
const (
	DebugRegister = 1 << iota // Register block after each cycle
	DebugIntr                 // Interrupt requests and grants
	DebugDetail               // Low level details
	DebugDevice               // First device-private bit
)

// MaskNames maps config/console option names to mask bits.
var MaskNames = map[string]int{
	"REGISTER": DebugRegister,
	"INTR":     DebugIntr,
	"DETAIL":   DebugDetail,
}

var (
	mu      sync.Mutex
	logFile io.WriteCloser
)

// Debugf writes one mask-gated record, prefixed with the device label.
func Debugf(label string, mask int, level int, format string, a ...interface{}) {
	if mask&level == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	fmt.Fprintf(logFile, label+": "+format+"\n", a...)
}

// SetFile opens the debug output file. Only one may be active.
func SetFile(fileName string) error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		return fmt.Errorf("debug file already open")
	}
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("unable to create debug file %s: %w", fileName, err)
	}
	logFile = file
	return nil
}

// SetOutput redirects debug records, used by tests.
func SetOutput(w io.WriteCloser) {
	mu.Lock()
	defer mu.Unlock()
	logFile = w
}

// Close flushes and closes the debug file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
