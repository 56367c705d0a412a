package main

import (
	"os"

	"github.com/fixloop/fixloop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
