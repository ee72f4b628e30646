package main

import (
	"fmt"
	"os"

	"github.com/0xcro3dile/incidentrag-go/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
