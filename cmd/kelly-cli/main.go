package main

import (
	"os"

	"kellyq/cmd/kelly-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
