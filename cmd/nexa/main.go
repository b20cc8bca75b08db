package main

import (
	"os"

	"github.com/netcrate/nexa/internal/engine"
)

func main() {
	if err := engine.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
