package main

import (
	"os"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
