package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
)

func newCmd_Add() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Schedule source directories for backup.",
		Description: "Adds one or more source directories to this machine's backup schedule.",
		Flags:       backupFlags(FlagSource),
		Action: func(c *cli.Context) error {
			ctx, err := openBackupContext(c)
			if err != nil {
				return err
			}

			changed, already, err := backup.Add(ctx.doc, ctx.machine, c.StringSlice("source"))
			if err != nil {
				ctx.close()
				return err
			}

			for _, source := range already {
				fmt.Printf("already scheduled: %s\n", source)
			}

			return ctx.persist(changed)
		},
	}
}
