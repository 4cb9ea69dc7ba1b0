// Package main is the entry point for the otus-rtp stream analyser.
package main

import (
	"os"

	"firestige.xyz/otus-rtp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
