//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The hotkey backend needs the main thread on macOS and Windows, so the
// command runs on a second goroutine.
func main() {
	code := 0
	mainthread.Init(func() { code = execute() })
	os.Exit(code)
}
