package main

import (
	"os"

	"github.com/distantorigin/field-updater/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
