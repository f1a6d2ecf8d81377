package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/marcpage/libernet/backup"
	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/libconfig"
	"github.com/marcpage/libernet/msgcenter"
	"github.com/marcpage/libernet/proxystore"
)

const backupSettingsFile = "backup.json"

// backupContext bundles everything every add/remove/list/backup/restore
// action needs: a resolved store, the reconciled backup.json settings,
// the machine's loaded backup Document, and a message center reporting
// its progress.
type backupContext struct {
	store        blockstore.Store
	center       *msgcenter.Center
	progress     *progressReporter
	doc          *backup.Document
	machine      string
	settingsPath string
	settings     libconfig.Settings
}

func stdinPrompter(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line)
}

func confirmerFor(c *cli.Context) backup.Confirmer {
	switch {
	case c.Bool("yes"):
		return func(string) (bool, error) { return true, nil }
	case c.Bool("no"):
		return func(string) (bool, error) { return false, nil }
	default:
		return func(prompt string) (bool, error) {
			answer := stdinPrompter(prompt + " [y/N] ")
			answer = strings.ToLower(answer)
			return answer == "y" || answer == "yes", nil
		}
	}
}

func openBackupContext(c *cli.Context) (*backupContext, error) {
	storageRoot := c.String("storage")
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("cmd/libernet: creating storage directory: %w", err)
	}

	settingsPath := filepath.Join(storageRoot, backupSettingsFile)
	settings, err := libconfig.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	section := libconfig.Section(settings, "backup")

	var prompt libconfig.Prompter
	if !c.Bool("yes") && !c.Bool("no") {
		prompt = stdinPrompter
	}

	changed := false

	server := c.String("server")
	var serverPtr *string
	if c.IsSet("server") {
		serverPtr = &server
	}
	save, server := libconfig.CheckArg(serverPtr, "server", "", section, "", nil)
	changed = changed || save

	port := c.Int("port")
	var portPtr *int
	if c.IsSet("port") {
		portPtr = &port
	}
	save, port = libconfig.CheckArg(portPtr, "port", 7777, section, "", nil)
	changed = changed || save

	hostname, _ := os.Hostname()
	machine := c.String("machine")
	var machinePtr *string
	if c.IsSet("machine") {
		machinePtr = &machine
	}
	save, machine = libconfig.CheckArg(machinePtr, "machine", hostname, section, "Machine name: ", prompt)
	changed = changed || save

	months := c.Int("months")
	var monthsPtr *int
	if c.IsSet("months") {
		monthsPtr = &months
	}
	save, months = libconfig.CheckArg(monthsPtr, "months", 3, section, "", nil)
	changed = changed || save

	// TODO: --days (FlagDays) is accepted but discovery is month-granular;
	// there's no staleness warning yet to thread it into.

	if changed {
		if err := libconfig.Save(settingsPath, settings); err != nil {
			return nil, err
		}
	}

	var store blockstore.Store
	if server != "" {
		store = proxystore.NewProxy(server, port)
	} else {
		store, err = blockstore.NewDisk(storageRoot)
		if err != nil {
			return nil, fmt.Errorf("cmd/libernet: opening block store: %w", err)
		}
	}

	creds, err := backup.ResolveCredentials(backup.CredentialOptions{
		User:           c.String("user"),
		Passphrase:     c.String("passphrase"),
		UseEnvironment: c.Bool("environment"),
		UseKeychain:    c.Bool("keychain"),
	}, os.Getenv, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}

	doc, err := backup.Load(creds.User, creds.Passphrase, store, months, time.Now(), confirmerFor(c))
	if err != nil {
		return nil, err
	}

	center := msgcenter.New()

	return &backupContext{
		store:        store,
		center:       center,
		progress:     newProgressReporter(center),
		doc:          doc,
		machine:      machine,
		settingsPath: settingsPath,
		settings:     settings,
	}, nil
}

// persist saves doc back to the store if changed, reporting the new
// document's url, then tears down the message center.
func (ctx *backupContext) persist(changed bool) error {
	defer ctx.close()

	if !changed {
		return nil
	}

	url, err := backup.Save(ctx.doc, ctx.store)
	if err != nil {
		return fmt.Errorf("cmd/libernet: saving backup configuration: %w", err)
	}

	fmt.Printf("backup configuration saved: %s\n", url)
	return nil
}

func (ctx *backupContext) close() {
	ctx.center.Shutdown()
	ctx.progress.wait()
	ctx.center.Join()

	ctx.store.Shutdown()
	ctx.store.Join()
}
