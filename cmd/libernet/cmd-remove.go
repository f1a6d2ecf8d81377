package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
)

func newCmd_Remove() *cli.Command {
	return &cli.Command{
		Name:        "remove",
		Usage:       "Unschedule source directories from backup.",
		Description: "Removes one or more source directories from this machine's backup schedule.",
		Flags:       backupFlags(FlagSource),
		Action: func(c *cli.Context) error {
			ctx, err := openBackupContext(c)
			if err != nil {
				return err
			}

			changed, notTracked, err := backup.Remove(ctx.doc, ctx.machine, c.StringSlice("source"))
			if err != nil {
				ctx.close()
				return err
			}

			for _, source := range notTracked {
				fmt.Printf("not scheduled: %s\n", source)
			}

			return ctx.persist(changed)
		},
	}
}
