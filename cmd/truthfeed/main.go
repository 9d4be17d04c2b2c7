package main

import (
	"os"

	"github.com/truthlayer-systems/truthfeed/cmd/truthfeed/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
