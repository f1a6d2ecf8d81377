package backup

import (
	"strings"
	"testing"
)

func TestResolveCredentialsPrefersExplicitFlags(t *testing.T) {
	creds, err := ResolveCredentials(
		CredentialOptions{User: "alice", Passphrase: "s3cret"},
		func(string) string { return "" },
		strings.NewReader(""),
		&strings.Builder{},
	)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.User != "alice" || creds.Passphrase != "s3cret" {
		t.Errorf("got %+v, want alice/s3cret", creds)
	}
}

func TestResolveCredentialsFallsBackToEnvironment(t *testing.T) {
	env := map[string]string{
		EnvUser: "bob",
		EnvPass: "hunter2",
	}

	creds, err := ResolveCredentials(
		CredentialOptions{UseEnvironment: true},
		func(name string) string { return env[name] },
		strings.NewReader(""),
		&strings.Builder{},
	)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.User != "bob" || creds.Passphrase != "hunter2" {
		t.Errorf("got %+v, want bob/hunter2", creds)
	}
}

func TestResolveCredentialsPromptsWhenNothingElseResolves(t *testing.T) {
	output := &strings.Builder{}
	input := strings.NewReader("carol\n")

	creds, err := ResolveCredentials(
		CredentialOptions{Passphrase: "already-set"},
		func(string) string { return "" },
		input,
		output,
	)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.User != "carol" {
		t.Errorf("User = %q, want carol", creds.User)
	}
	if !strings.Contains(output.String(), "username") {
		t.Errorf("expected a username prompt in output, got %q", output.String())
	}
}

func TestResolveCredentialsRejectsEmptyUsername(t *testing.T) {
	_, err := ResolveCredentials(
		CredentialOptions{Passphrase: "pw"},
		func(string) string { return "" },
		strings.NewReader("\n"),
		&strings.Builder{},
	)
	if err == nil {
		t.Fatal("expected an error for an empty username")
	}
}
