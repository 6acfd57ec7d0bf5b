package main

import (
	"os"

	"github.com/ganauditor/ganauditor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
