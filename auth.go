package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/credential"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the API key used to reach the document store",
		Long: `Store a Gemini API key (or, with --access-token, an OAuth access token)
in the data directory with owner-only permissions. The key is checked by
listing stores before it is saved, unless --no-verify is given.

GEMINI_API_KEY, API_KEY, and GOOGLE_OAUTH_ACCESS_TOKEN in the environment
take precedence over the saved credential.`,
		Annotations: map[string]string{tolerateConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogin,
	}

	cmd.Flags().Bool("stdin", false, "read the key from stdin instead of prompting")
	cmd.Flags().Bool("access-token", false, "store an OAuth access token instead of an API key")
	cmd.Flags().Duration("expires-in", time.Hour, "lifetime of the access token")
	cmd.Flags().Bool("no-verify", false, "save without checking the credential")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the saved credential",
		Annotations: map[string]string{tolerateConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	useToken, _ := cmd.Flags().GetBool("access-token")
	fromStdin, _ := cmd.Flags().GetBool("stdin")

	label := "API key"
	if useToken {
		label = "Access token"
	}

	var (
		secret string
		err    error
	)

	if fromStdin {
		secret, err = readSecret(os.Stdin)
	} else {
		secret, err = promptText(label, "", "", true)
	}

	if err != nil {
		return fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	f := &credential.File{SavedAt: time.Now().UTC()}

	var auth credential.Authorizer

	if useToken {
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")
		f.Token = &oauth2.Token{
			AccessToken: secret,
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(expiresIn),
		}
		auth = credential.NewOAuth(oauth2.StaticTokenSource(f.Token))
	} else {
		f.APIKey = secret
		auth = credential.APIKey(secret)
	}

	if noVerify, _ := cmd.Flags().GetBool("no-verify"); !noVerify {
		if err := verifyCredential(ctx, cc, auth); err != nil {
			return err
		}
	}

	path := config.CredentialPath(cc.Cfg.DataDir)
	if err := credential.Save(path, f); err != nil {
		return err
	}

	cc.Logger.Info("credential saved", "path", path, "kind", strings.ToLower(label))
	cc.Statusf("Login successful. Credential saved to %s\n", path)

	return nil
}

// verifyCredential makes one cheap authenticated call.
func verifyCredential(ctx context.Context, cc *CLIContext, auth credential.Authorizer) error {
	if cc.Cfg.Backend.Kind == config.BackendMinio {
		return nil
	}

	client := newGeminiClient(cc.Cfg, auth, cc.Logger, cc.Cfg.Sync.MaxRetries)

	if _, err := client.ListStores(ctx); err != nil {
		return fmt.Errorf("credential rejected: %w", err)
	}

	return nil
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty input")
	}

	return line, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path := config.CredentialPath(cc.Cfg.DataDir)
	if err := credential.Remove(path); err != nil {
		return err
	}

	cc.Logger.Info("credential removed", "path", path)
	cc.Statusf("Logged out.\n")

	return nil
}
