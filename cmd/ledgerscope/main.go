package main

import (
	"os"

	"github.com/helioslabs/ledgerscope/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
