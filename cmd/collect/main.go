package main

import (
	"os"

	"github.com/collectnet/collect/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
