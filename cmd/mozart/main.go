package main

import "github.com/dshills/mozart/internal/cli"

// Set by ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
