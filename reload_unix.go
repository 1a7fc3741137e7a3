//go:build !windows
// +build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// setupReloadSignal calls reconvert on every SIGUSR1 until the returned
// function is called
func setupReloadSignal(reconvert func(string)) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	go func() {
		for range sigChan {
			reconvert("Manual reload triggered (SIGUSR1)")
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}
