package main

import (
	"os"

	"github.com/vnmchuo/costs-service/cmd/costsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
