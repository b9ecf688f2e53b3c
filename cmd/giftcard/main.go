package main

import (
	"fmt"
	"os"

	"github.com/ripkitten-co/giftcard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "giftcard:", err)
		os.Exit(1)
	}
}
