package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
)

func newCmd_Restore() *cli.Command {
	return &cli.Command{
		Name:        "restore",
		Usage:       "Restore scheduled source directories from their last backup.",
		Description: "Restores every requested source (or every scheduled source if none are named) to destination.",
		Flags:       backupFlags(FlagSource, FlagDestination),
		Action: func(c *cli.Context) error {
			ctx, err := openBackupContext(c)
			if err != nil {
				return err
			}
			defer ctx.close()

			targets, missingSources := backup.RestoreTargets(ctx.doc, ctx.machine, c.StringSlice("source"), c.String("destination"))
			for _, source := range missingSources {
				fmt.Printf("not scheduled, skipping: %s\n", source)
			}

			results, err := backup.RunRestore(ctx.doc, ctx.machine, targets, ctx.store, ctx.center)
			if err != nil {
				return err
			}

			for source, missingBlocks := range results {
				fmt.Printf("%s: missing blocks, nothing written: %v\n", source, missingBlocks)
			}

			return nil
		},
	}
}
