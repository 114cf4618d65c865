// Package main provides wms-inspect, a command line tool that scans data
// files the way the server does and prints what it would serve.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
