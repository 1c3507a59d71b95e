// Package main is the entry point for the cacheplane binary.
// It provides a CLI for inspecting and watching resolved cache policies.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
