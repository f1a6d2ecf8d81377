package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	flags := append([]cli.Flag{}, NewKlogFlagSet()...)

	app := &cli.App{
		Name:        "libernet",
		Version:     gitCommitSHA,
		Description: "Content-addressed block storage and versioned directory backup.",
		Flags:       flags,
		Commands: []*cli.Command{
			newCmd_Serve(),
			newCmd_Add(),
			newCmd_Remove(),
			newCmd_List(),
			newCmd_Backup(),
			newCmd_Restore(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
