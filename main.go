package main

import (
	"os"

	"github.com/rhysr01/jobping/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
