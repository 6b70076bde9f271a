package main

import (
	"os"

	"github.com/theblitlabs/csvtrain/cmd/cli"
)

func main() {
	os.Exit(cli.Execute())
}
