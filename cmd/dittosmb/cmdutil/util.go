// Package cmdutil provides shared utilities for dittosmb commands.
package cmdutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/marmos91/dittosmb/internal/cli/credentials"
	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/apiclient"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/controlplane/store"
)

// Flags holds the persistent flags of the root command.
var Flags = &GlobalFlags{}

type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Token      string
	Output     string
	NoColor    bool
}

// ErrEmptyPassword is returned when --password-stdin reads nothing.
var ErrEmptyPassword = errors.New("empty password on stdin")

const loginHint = "Run 'dittosmb login --server <url>'"

// GetAuthenticatedClient builds an API client from the saved login context.
// --server and --token win over what was saved.
func GetAuthenticatedClient() (*apiclient.Client, error) {
	url, token := Flags.ServerURL, Flags.Token
	if url == "" || token == "" {
		saved, err := savedLogin()
		switch {
		case err != nil && url == "":
			return nil, err
		case err == nil:
			if url == "" {
				url = saved.ServerURL
			}
			if token == "" && saved.AccessToken != "" {
				if token, err = saved.Token(); err != nil {
					return nil, fmt.Errorf("session expired. Run 'dittosmb login' to re-authenticate")
				}
			}
		}
		// With --server and no saved login the server must be running
		// without a JWT secret.
	}
	if url == "" {
		return nil, fmt.Errorf("no server URL configured. %s first", loginHint)
	}

	client := apiclient.New(url)
	if token != "" {
		client = client.WithToken(token)
	}
	return client, nil
}

func savedLogin() (*credentials.Context, error) {
	cs, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	ctx, err := cs.GetCurrentContext()
	if err != nil {
		return nil, fmt.Errorf("not logged in. %s first", loginHint)
	}
	return ctx, nil
}

// GetOutputFormatParsed parses --output.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput writes data as JSON or YAML, or as the table; an empty table
// is replaced by emptyMsg.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}
	return output.Print(w, format, data, func(w io.Writer) error {
		if isEmpty {
			_, err := fmt.Fprintln(w, emptyMsg)
			return err
		}
		return output.Table(w, tableRenderer)
	})
}

// PrintSuccess confirms an action, in table mode only.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.Success(os.Stdout, msg, !Flags.NoColor)
}

// HandleAbort turns a Ctrl+C at a prompt into a clean exit.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// ReadPassword returns a new password, either read from r when fromStdin is
// set or asked for interactively with confirmation. Passwords shorter than
// the credential store accepts are rejected either way.
func ReadPassword(r io.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		return ReadPasswordFrom(r)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal; use --password-stdin")
	}
	return prompt.NewPassword(models.ValidatePassword)
}

// ReadPasswordFrom reads the first line of r as a password. The trailing
// newline is stripped, other whitespace is kept.
func ReadPasswordFrom(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrEmptyPassword
	}
	return line, nil
}

// OpenStore loads the configuration and opens its credential store.
// Commands that change users work on the store directly, so they also work
// while the server is stopped.
func OpenStore() (*store.GORMStore, *config.Config, error) {
	cfg, err := config.MustLoad(Flags.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return s, cfg, nil
}

func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// FormatTimePtr renders an optional timestamp for tables.
func FormatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
