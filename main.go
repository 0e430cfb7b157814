package main

import (
	"os"

	"github.com/meshboardio/meshboard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitSetupFailed)
	}
}
