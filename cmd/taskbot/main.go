package main

import (
	"os"

	"github.com/amirbrooks/taskbot/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
