// Package auth handles operator token storage and retrieval for lantern.
//
// Tokens are sourced in the following priority order:
//  1. Environment variable: LANTERN_TOKEN
//  2. OS Keyring, one entry per server host
//  3. Config file fallback: <user config dir>/lantern/token (for non-interactive environments)
//
// The token is opaque to lantern. It is presented as a bearer token to the
// REST API and as the token query parameter of the realtime endpoint.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/lantern-c2/lantern/internal/paths"
)

const (
	// keyringService is the service name used in OS keyring storage.
	keyringService = "lantern"
	// keyringUserPrefix prefixes the server host in the keyring account name.
	keyringUserPrefix = "operator-token@"
	// EnvVarName is the environment variable for the operator token.
	EnvVarName = "LANTERN_TOKEN"
)

// CredentialSource indicates where credentials were found.
type CredentialSource string

// Credential source constants identify where credentials were loaded from.
const (
	SourceEnv     CredentialSource = "environment variable"
	SourceKeyring CredentialSource = "keyring"
	SourceFile    CredentialSource = "config file"
	SourceNone    CredentialSource = ""
)

// keyringUser returns the keyring account for a server. Tokens for different
// servers do not overwrite each other.
func keyringUser(serverURL string) string {
	host := serverURL
	if u, err := url.Parse(serverURL); err == nil && u.Host != "" {
		host = u.Host
	}

	return keyringUserPrefix + strings.ToLower(host)
}

// GetCredentials returns the operator token for serverURL and its source.
// Returns empty strings if no credentials are found.
func GetCredentials(serverURL string) (source CredentialSource, token string) {
	if tok := strings.TrimSpace(os.Getenv(EnvVarName)); tok != "" {
		return SourceEnv, tok
	}

	if tok, err := keyring.Get(keyringService, keyringUser(serverURL)); err == nil && tok != "" {
		return SourceKeyring, tok
	}

	if tok := readCredentialsFile(); tok != "" {
		return SourceFile, tok
	}

	return SourceNone, ""
}

// StoreToken stores the token for serverURL in the OS keyring.
// Falls back to file storage if keyring is unavailable.
func StoreToken(serverURL, token string) (CredentialSource, error) {
	if err := keyring.Set(keyringService, keyringUser(serverURL), token); err == nil {
		return SourceKeyring, nil
	}

	if err := writeCredentialsFile(token); err != nil {
		return SourceNone, err
	}

	return SourceFile, nil
}

// ErrNoCredentials is returned by DeleteToken when nothing was stored.
var ErrNoCredentials = errors.New("no stored credentials found")

// DeleteToken removes the stored token for serverURL from the keyring and the
// file fallback. It succeeds if either held a token.
func DeleteToken(serverURL string) error {
	keyringErr := keyring.Delete(keyringService, keyringUser(serverURL))
	fileErr := deleteCredentialsFile()

	if keyringErr == nil || fileErr == nil {
		return nil
	}

	if !errors.Is(fileErr, os.ErrNotExist) {
		return fileErr
	}

	if errors.Is(keyringErr, keyring.ErrNotFound) {
		return ErrNoCredentials
	}

	return fmt.Errorf("%w (keyring: %v)", ErrNoCredentials, keyringErr)
}

// credentialsFilePath returns the path to the credentials file.
func credentialsFilePath() string {
	path, err := paths.CredentialsFile()
	if err != nil {
		return ""
	}

	return filepath.Clean(path)
}

// readCredentialsFile reads the token from the file fallback.
func readCredentialsFile() string {
	path := credentialsFilePath()
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from controlled config directory
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// writeCredentialsFile writes the token to the file fallback.
func writeCredentialsFile(token string) error {
	path := credentialsFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Owner read/write only.
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	return nil
}

// deleteCredentialsFile removes the credentials file.
func deleteCredentialsFile() error {
	path := credentialsFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove credentials file: %w", err)
	}

	return nil
}
