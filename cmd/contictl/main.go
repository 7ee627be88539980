package main

import (
	"os"

	"conti/cmd/contictl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
