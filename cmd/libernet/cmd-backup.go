package main

import (
	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
)

func newCmd_Backup() *cli.Command {
	return &cli.Command{
		Name:        "backup",
		Usage:       "Back up every scheduled source directory.",
		Description: "Creates (or incrementally updates) a bundle for every source directory scheduled on this machine.",
		Flags:       backupFlags(),
		Action: func(c *cli.Context) error {
			ctx, err := openBackupContext(c)
			if err != nil {
				return err
			}

			changed, err := backup.Run(ctx.doc, ctx.machine, ctx.store, ctx.center)
			if err != nil {
				ctx.close()
				return err
			}

			return ctx.persist(changed)
		},
	}
}
