package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"scenecast/internal/adapters/storage/gdrive"
	"scenecast/internal/adapters/storage/localfs"
	"scenecast/internal/config"
)

// NewProvider builds the provider cfg.Provider names.
func NewProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs")
		}
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, g config.GDrive) (Provider, error) {
	for k, v := range map[string]string{
		"GDRIVE_CLIENT_ID":     g.ClientID,
		"GDRIVE_CLIENT_SECRET": g.ClientSecret,
		"GDRIVE_REFRESH_TOKEN": g.RefreshToken,
	} {
		if v == "" {
			return nil, fmt.Errorf("%s is required for gdrive", k)
		}
	}

	conf := OAuthConfig(g.ClientID, g.ClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: g.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return gdrive.NewClient(srv, g.FolderID), nil
}

// OAuthConfig is the Drive client config shared by the provider and the
// consent flow in cmd/gdrive-auth.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}
