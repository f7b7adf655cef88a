// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"sync"
)

// signals defines the signals that are handled to do a clean shutdown.
// Conditional compilation is used to also include SIGTERM on Unix.
var signals = []os.Signal{os.Interrupt}

// shutdownHandler is a named callback run once when the command is asked to
// stop.
type shutdownHandler struct {
	name string
	fn   func()
}

// interruptHandler runs the registered shutdown handlers, newest first, on
// the first signal or shutdown request it sees.
type interruptHandler struct {
	add      chan shutdownHandler
	simulate chan struct{}

	// done is closed after every handler has returned.
	done chan struct{}
}

func newInterruptHandler() *interruptHandler {
	return &interruptHandler{
		add:      make(chan shutdownHandler),
		simulate: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// run serves handler registrations until sigs delivers a signal or a
// shutdown is requested.  It must be run as a goroutine.
func (h *interruptHandler) run(sigs <-chan os.Signal) {
	var handlers []shutdownHandler
	shutdown := func() {
		for i := len(handlers) - 1; i >= 0; i-- {
			log.Debugf("Stopping %s", handlers[i].name)
			handlers[i].fn()
		}
		close(h.done)
	}

	for {
		select {
		case sig := <-sigs:
			log.Infof("Received signal (%s).  Shutting down hdwallet...",
				sig)
			shutdown()
			return

		case <-h.simulate:
			log.Info("Shutdown requested.  Shutting down hdwallet...")
			shutdown()
			return

		case handler := <-h.add:
			handlers = append(handlers, handler)
		}
	}
}

// requestShutdown starts the shutdown without a signal.  Repeated requests
// are ignored.
func (h *interruptHandler) requestShutdown() {
	select {
	case h.simulate <- struct{}{}:
	default:
	}
}

var (
	// interrupts serves the running command.
	interrupts = newInterruptHandler()

	startInterrupts sync.Once
)

// addInterruptHandler registers fn, described by name in the shutdown log,
// to run on SIGINT (Ctrl+C), SIGTERM or simulateInterrupt.
func addInterruptHandler(name string, fn func()) {
	startInterrupts.Do(func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, signals...)
		go interrupts.run(sigs)
	})

	interrupts.add <- shutdownHandler{name: name, fn: fn}
}

// simulateInterrupt stops the running command as if it had been interrupted.
func simulateInterrupt() {
	interrupts.requestShutdown()
}
