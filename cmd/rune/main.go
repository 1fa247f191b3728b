package main

import (
	"os"

	"github.com/andrej220/rune/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:], os.Stdout, os.Stderr))
}
