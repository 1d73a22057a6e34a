package main

import (
	"os"

	"github.com/tcross/narrator/cmd/narrator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
