package main

import (
	"os"
)

func main() {
	state := &cliState{}
	err := newRootCmd(state).Execute()
	// RunE 出错时cobra不会执行PostRun，这里统一清理
	if state.app != nil {
		state.app.Shutdown()
	}
	if err != nil {
		os.Exit(1)
	}
}
