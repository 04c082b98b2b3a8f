// Package main provides the bucketstore CLI for inspecting and maintaining
// a bucket store.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
