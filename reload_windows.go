//go:build windows
// +build windows

package main

// Windows doesn't support SIGUSR1, so there is no signal-based reload
func setupReloadSignal(reconvert func(string)) func() {
	return nil
}
