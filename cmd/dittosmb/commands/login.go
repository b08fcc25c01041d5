package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/cmdutil"
	"github.com/marmos91/dittosmb/internal/cli/credentials"
	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/apiclient"
)

var (
	loginUsername      string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a dittosmb server",
	Long: `Authenticate with the management API of a dittosmb server and store
the access token.

On first login, you must specify the server URL. Subsequent logins will
use the stored server URL unless overridden. Servers without a JWT secret
accept API calls without a token; login then only records the server URL.

Examples:
  # First login to a server
  dittosmb login --server http://localhost:8080 --username alice

  # Read the password from a pipe
  echo "$PASSWORD" | dittosmb login -u alice --password-stdin

  # Re-login to stored server
  dittosmb login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL, err := resolveServerURL(store, cmdutil.Flags.ServerURL)
	if err != nil {
		return err
	}

	username := loginUsername
	if username == "" {
		username, err = prompt.Text("Username")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	var password string
	if loginPasswordStdin {
		password, err = cmdutil.ReadPasswordFrom(os.Stdin)
	} else {
		password, err = prompt.Secret("Password")
	}
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	client := apiclient.New(serverURL)
	contextName := credentials.GenerateContextName(serverURL)

	fmt.Printf("Logging in to %s as %s...\n", serverURL, username)
	tokens, err := client.Login(username, password)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			// No login route: the API runs without authentication.
			if err := store.SetContext(contextName, &credentials.Context{ServerURL: serverURL, Username: username}); err != nil {
				return fmt.Errorf("failed to save context: %w", err)
			}
			fmt.Println("Server does not require authentication; context saved without a token")
			return nil
		}
		return fmt.Errorf("login failed: %w", err)
	}

	ctx := &credentials.Context{
		ServerURL:   serverURL,
		Username:    tokens.User.Username,
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.ExpiresAt,
	}
	if err := store.SetContext(contextName, ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Logged in successfully as %s\n", ctx.Username)
	fmt.Printf("Context: %s\n", contextName)
	fmt.Printf("Token expires in: %s\n", time.Duration(tokens.ExpiresIn)*time.Second)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())
	return nil
}

// resolveServerURL returns the --server value, or the URL of the current
// context. A URL without scheme gets http://.
func resolveServerURL(store *credentials.Store, flag string) (string, error) {
	raw := flag
	if raw == "" {
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx.ServerURL == "" {
			return "", fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  dittosmb login --server http://localhost:8080")
		}
		raw = ctx.ServerURL
	}
	return normalizeServerURL(raw)
}

func normalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %q has no host", raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}
