package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/marcpage/libernet/blockserver"
	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/libconfig"
)

func newCmd_Serve() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Serve a storage directory's blocks over HTTP.",
		Description: "Answers GET/PUT requests and like-address discovery queries for the blocks in a storage directory.",
		Flags:       []cli.Flag{FlagStorage, FlagPort},
		Action: func(c *cli.Context) error {
			storageRoot := c.String("storage")
			if err := os.MkdirAll(storageRoot, 0o755); err != nil {
				return fmt.Errorf("cmd/libernet: creating storage directory: %w", err)
			}

			settingsPath := filepath.Join(storageRoot, "settings.json")
			settings, err := libconfig.Load(settingsPath)
			if err != nil {
				return err
			}

			port := c.Int("port")
			var portPtr *int
			if c.IsSet("port") {
				portPtr = &port
			}
			changed, resolvedPort := libconfig.CheckArg(portPtr, "port", 7777, settings, "", nil)
			if changed {
				if err := libconfig.Save(settingsPath, settings); err != nil {
					return err
				}
			}

			store, err := blockstore.NewDisk(storageRoot)
			if err != nil {
				return fmt.Errorf("cmd/libernet: opening block store: %w", err)
			}

			addr := fmt.Sprintf(":%d", resolvedPort)
			klog.Infof("cmd/libernet: serving %s from %s", addr, storageRoot)

			return blockserver.ListenAndServeContext(c.Context, addr, store)
		},
	}
}
