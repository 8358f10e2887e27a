package main

import (
	"os"

	"github.com/retailscope/gatewatch/cmd/gatewatch"
)

func main() {
	if err := gatewatch.Execute(); err != nil {
		os.Exit(1)
	}
}
