package main

import (
	"fmt"
	"os"

	"github.com/azure/linkedin-content-bot/cmd/postctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
