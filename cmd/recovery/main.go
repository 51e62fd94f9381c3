package main

import (
	"os"

	"github.com/rustyeddy/recovery/cmd/recovery/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
