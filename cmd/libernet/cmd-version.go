package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"
)

func newCmd_Version() *cli.Command {
	return &cli.Command{
		Name:        "version",
		Usage:       "Print version information of this binary.",
		Description: "Print version information of this binary.",
		Action: func(c *cli.Context) error {
			fmt.Println("libernet")
			fmt.Printf("Commit: %s\n", gitCommitSHA)
			fmt.Println("Go version:", runtime.Version())
			return nil
		},
	}
}
