/*
 * UBone - Main process.
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

package main

import (
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/qbus11/ubone/command"
	config "github.com/qbus11/ubone/config/configparser"
	"github.com/qbus11/ubone/emu/bus"
	"github.com/qbus11/ubone/telnet"
	"github.com/qbus11/ubone/util/debug"
	logger "github.com/qbus11/ubone/util/logger"

	_ "github.com/qbus11/ubone/config/debugconfig"
	_ "github.com/qbus11/ubone/emu/models"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "ubone.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("unable to create log file", "file", *optLogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		file = f
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	log := slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, *optDebug))
	slog.SetDefault(log)

	log.Info("UBone started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		log.Error("Configuration file not found", "file", *optConfig)
		os.Exit(1)
	}

	b := bus.New()

	if err := config.LoadConfigFile(*optConfig, b); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	// Start telnet servers for the serial lines.
	if err := telnet.Start(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	// Devices are installed; run the operator console until quit.
	console := command.New(b)
	if err := console.Run(); err != nil {
		log.Error(err.Error())
	}

	telnet.Stop()
	b.Shutdown()
	debug.Close()
	log.Info("UBone stopped")
}
