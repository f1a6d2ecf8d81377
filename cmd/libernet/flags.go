package main

import "github.com/urfave/cli/v2"

// FlagStorage names the directory holding blocks, settings.json/
// backup.json, and log.txt.
var FlagStorage = &cli.StringFlag{
	Name:    "storage",
	Aliases: []string{"storage-dir"},
	Usage:   "Directory holding blocks and settings",
	Value:   "./data",
}

// FlagPort is the block server's listen port, or the remote server's port
// when paired with FlagServer.
var FlagPort = &cli.IntFlag{
	Name:  "port",
	Usage: "Block server port",
}

// FlagServer names a remote block server to proxy through instead of
// reading/writing storage directly.
var FlagServer = &cli.StringFlag{
	Name:  "server",
	Usage: "Remote block server host (omit to use local storage directly)",
}

// FlagMachine names the machine a backup schedule is recorded under.
var FlagMachine = &cli.StringFlag{
	Name:  "machine",
	Usage: "Machine name this backup schedule applies to",
}

// FlagUser is the backup account's username.
var FlagUser = &cli.StringFlag{
	Name:    "user",
	Aliases: []string{"u"},
	Usage:   "Backup account username",
}

// FlagPassphrase is the backup account's passphrase.
var FlagPassphrase = &cli.StringFlag{
	Name:    "passphrase",
	Aliases: []string{"p"},
	Usage:   "Backup account pass phrase",
}

// FlagYes auto-confirms any interactive prompt.
var FlagYes = &cli.BoolFlag{
	Name:    "yes",
	Aliases: []string{"y"},
	Usage:   "Answer yes to any confirmation prompt",
}

// FlagNo auto-declines any interactive prompt.
var FlagNo = &cli.BoolFlag{
	Name:    "no",
	Aliases: []string{"n"},
	Usage:   "Answer no to any confirmation prompt",
}

// FlagSource lists source directories for add/remove/restore.
var FlagSource = &cli.StringSliceFlag{
	Name:    "source",
	Aliases: []string{"s"},
	Usage:   "Source directory (repeatable)",
}

// FlagDestination is where restore writes recovered files.
var FlagDestination = &cli.StringFlag{
	Name:    "destination",
	Aliases: []string{"d"},
	Usage:   "Destination directory for restore",
}

// FlagKeychain enables resolving/storing credentials in the OS keychain.
var FlagKeychain = &cli.BoolFlag{
	Name:  "keychain",
	Usage: "Resolve/store credentials in the OS keychain",
}

// FlagEnvironment enables resolving credentials from LIBERNETUSERNAME/
// LIBERNETPASSWORD.
var FlagEnvironment = &cli.BoolFlag{
	Name:  "environment",
	Usage: "Resolve credentials from LIBERNETUSERNAME/LIBERNETPASSWORD",
}

// FlagMonths bounds how many months of backup history discovery scans.
var FlagMonths = &cli.IntFlag{
	Name:  "months",
	Usage: "Number of months of backup history to search",
}

// FlagDays is accepted by every backup subcommand but its value is not
// read or stored: discovery is month-granular (see FlagMonths).
var FlagDays = &cli.IntFlag{
	Name:  "days",
	Usage: "Number of days of backup history (accepted but not used)",
}

func backupFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		FlagStorage,
		FlagServer,
		FlagPort,
		FlagMachine,
		FlagUser,
		FlagPassphrase,
		FlagYes,
		FlagNo,
		FlagKeychain,
		FlagEnvironment,
		FlagMonths,
		FlagDays,
	}
	return append(flags, extra...)
}
