package main

import (
	"os"

	"github.com/rtzll/yt2md/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
