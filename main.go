// Package main is the entry point for the formstat CLI tool, which imports
// per-match observation data and computes time-decayed form statistics.
package main

import "github.com/formstat/formstat/cmd"

func main() {
	cmd.Execute()
}
