// Package main is arctosctl, a command line controller for an Arctos robot
// arm on a CAN bus.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "arctosctl:", err)
		os.Exit(1)
	}
}
