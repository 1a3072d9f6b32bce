package main

import (
	"os"

	"github.com/flightbus/simtel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
