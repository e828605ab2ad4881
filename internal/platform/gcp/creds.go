package gcp

import (
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type credentialKind int

const (
	credsDefault credentialKind = iota
	credsNone
	credsJSON
	credsFile
)

// resolveCredentials picks, in order: no auth for an emulator, the configured
// credentials file, GOOGLE_APPLICATION_CREDENTIALS_JSON, then
// GOOGLE_APPLICATION_CREDENTIALS (inline JSON or a path). Nothing found means
// application default credentials.
func resolveCredentials(cfg ArchiveConfig) (credentialKind, string) {
	if strings.TrimSpace(cfg.EmulatorHost) != "" {
		return credsNone, ""
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		return credsFile, path
	}
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case creds == "":
		return credsDefault, ""
	case strings.HasPrefix(creds, "{"):
		return credsJSON, creds
	default:
		return credsFile, creds
	}
}

func storageClientOptions(cfg ArchiveConfig) []option.ClientOption {
	kind, value := resolveCredentials(cfg)
	switch kind {
	case credsNone:
		return []option.ClientOption{option.WithoutAuthentication()}
	case credsJSON:
		return []option.ClientOption{option.WithCredentialsJSON([]byte(value)), option.WithScopes(storage.ScopeReadWrite)}
	case credsFile:
		return []option.ClientOption{option.WithCredentialsFile(value), option.WithScopes(storage.ScopeReadWrite)}
	default:
		return []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	}
}
