// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/snapwallet/btcengine/chain"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/wallet"
	"github.com/snapwallet/btcengine/wallet/coinselect"
	"github.com/snapwallet/btcengine/wallet/psbtbuilder"
)

// logWriter implements an io.Writer that outputs to standard error and the
// log rotator, if one is initialized. Standard output is kept for results.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}

	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It is nil until
	// initLogRotator is called.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("BTCE")
	hdkyLog = backendLog.Logger("HDKY")
	wlltLog = backendLog.Logger("WLLT")
	cselLog = backendLog.Logger("CSEL")
	psbtLog = backendLog.Logger("PSBT")
	chanLog = backendLog.Logger("CHAN")
)

// Initialize package-global logger variables.
func init() {
	hdkey.UseLogger(hdkyLog)
	wallet.UseLogger(wlltLog)
	coinselect.UseLogger(cselLog)
	psbtbuilder.UseLogger(psbtLog)
	chain.UseLogger(chanLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"BTCE": log,
	"HDKY": hdkyLog,
	"WLLT": wlltLog,
	"CSEL": cselLog,
	"PSBT": psbtLog,
	"CHAN": chanLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r

	return nil
}

// setLogLevels sets the log level of every subsystem.
func setLogLevels(logLevel string) error {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid log level %q, subsystems are %v",
			logLevel, supportedSubsystems())
	}

	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}

	return nil
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	sort.Strings(subsystems)

	return subsystems
}
