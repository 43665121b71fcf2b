package main

import (
	"os"

	"github.com/mvp-joe/askcode/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
