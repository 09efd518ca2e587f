package main

import (
	"os"

	"github.com/asaidimu/go-persistmap/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
