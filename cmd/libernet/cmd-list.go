package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
)

func newCmd_List() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List source directories scheduled for backup.",
		Description: "Lists this machine's scheduled source directories and whether each has a backup yet.",
		Flags:       backupFlags(),
		Action: func(c *cli.Context) error {
			ctx, err := openBackupContext(c)
			if err != nil {
				return err
			}
			defer ctx.close()

			for _, entry := range backup.List(ctx.doc, ctx.machine) {
				if entry.Backed {
					fmt.Printf("%s\t%s\n", entry.Path, entry.Bundle)
				} else {
					fmt.Printf("%s\t(not yet backed up)\n", entry.Path)
				}
			}

			return nil
		},
	}
}
