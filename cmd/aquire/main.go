// Package main provides the aquire CLI: inspect and change the adaptive
// visual tuning, either through a running aquired or in-process.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
