package backup

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// keyringService is the go-keyring service name libernet stores
// credentials under.
const keyringService = "libernet"

// keyringUserKey is the account name the machine's chosen username is
// itself stored under (so it can be recalled without already knowing it).
const keyringUserKey = "username"

// EnvUser and EnvPass name the environment variables process_args checks
// before falling back to the keychain or a prompt.
const (
	EnvUser = "LIBERNETUSERNAME"
	EnvPass = "LIBERNETPASSWORD"
)

// Credentials is a resolved username/passphrase pair.
type Credentials struct {
	User       string
	Passphrase string
}

// CredentialOptions mirrors backup.py's --user/--passphrase/--environment/
// --keychain flags: explicit overrides, and which fallback sources to
// consult before prompting.
type CredentialOptions struct {
	User           string
	Passphrase     string
	UseEnvironment bool
	UseKeychain    bool
}

// ResolveCredentials resolves a username and passphrase in the same
// priority order as process_args: explicit flag, then environment (if
// enabled), then keychain (if enabled), then an interactive prompt. If
// UseKeychain is set and a resolved value wasn't already present in the
// keychain, it's written there for next time.
//
// Grounded on libernet/backup.py's process_args.
func ResolveCredentials(opts CredentialOptions, getenv func(string) string, input io.Reader, output io.Writer) (Credentials, error) {
	user := opts.User
	if user == "" && opts.UseEnvironment {
		user = getenv(EnvUser)
	}
	if user == "" && opts.UseKeychain {
		user, _ = keyring.Get(keyringService, keyringUserKey)
	}
	if user == "" {
		entered, err := readLine(input, output, "Libernet account username: ")
		if err != nil {
			return Credentials{}, err
		}
		if entered == "" {
			return Credentials{}, fmt.Errorf("backup: you must specify a username")
		}
		user = entered
	}

	if opts.UseKeychain {
		if _, err := keyring.Get(keyringService, keyringUserKey); err != nil {
			if setErr := keyring.Set(keyringService, keyringUserKey, user); setErr != nil {
				return Credentials{}, fmt.Errorf("backup: saving username to keychain: %w", setErr)
			}
		}
	}

	passphraseKey := keyringUserKey + "_" + user

	passphrase := opts.Passphrase
	if passphrase == "" && opts.UseEnvironment {
		passphrase = getenv(EnvPass)
	}
	if passphrase == "" && opts.UseKeychain {
		passphrase, _ = keyring.Get(keyringService, passphraseKey)
	}
	if passphrase == "" {
		entered, err := readSecret(input, output, "Libernet account pass phrase: ")
		if err != nil {
			return Credentials{}, err
		}
		if entered == "" {
			return Credentials{}, fmt.Errorf("backup: you must specify a pass phrase")
		}
		passphrase = entered
	}

	if opts.UseKeychain {
		if _, err := keyring.Get(keyringService, passphraseKey); err != nil {
			if setErr := keyring.Set(keyringService, passphraseKey, passphrase); setErr != nil {
				return Credentials{}, fmt.Errorf("backup: saving passphrase to keychain: %w", setErr)
			}
		}
	}

	return Credentials{User: user, Passphrase: passphrase}, nil
}

func readLine(input io.Reader, output io.Writer, prompt string) (string, error) {
	fmt.Fprint(output, prompt)

	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("backup: reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// fileDescriptor is implemented by inputs backed by a real file, such as
// os.Stdin; when such an input is a terminal, readSecret asks term to read
// from it without echoing.
type fileDescriptor interface {
	Fd() uintptr
}

func readSecret(input io.Reader, output io.Writer, prompt string) (string, error) {
	fmt.Fprint(output, prompt)

	if tty, ok := input.(fileDescriptor); ok && term.IsTerminal(int(tty.Fd())) {
		secret, err := term.ReadPassword(int(tty.Fd()))
		fmt.Fprintln(output)
		if err != nil {
			return "", fmt.Errorf("backup: reading passphrase: %w", err)
		}
		return string(secret), nil
	}

	return readLine(input, io.Discard, "")
}
