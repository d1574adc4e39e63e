package storage

import (
	"context"
	"strings"
	"testing"

	"scenecast/internal/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.Storage{Provider: "localfs", LocalRoot: t.TempDir()})
	if err != nil || p.Provider() != "localfs" {
		t.Fatalf("localfs: %v", err)
	}
	if _, err := NewProvider(ctx, config.Storage{Provider: "localfs"}); err == nil {
		t.Error("localfs without root must fail")
	}
	_, err = NewProvider(ctx, config.Storage{Provider: "gdrive", GDrive: config.GDrive{ClientID: "id"}})
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("gdrive without credentials: %v", err)
	}
	if _, err := NewProvider(ctx, config.Storage{Provider: "s3"}); err == nil {
		t.Error("unknown provider must fail")
	}
}

func TestOAuthConfigScope(t *testing.T) {
	c := OAuthConfig("id", "secret", "http://127.0.0.1:1/callback")
	if len(c.Scopes) != 1 || !strings.HasSuffix(c.Scopes[0], "/auth/drive.file") {
		t.Errorf("scopes = %v", c.Scopes)
	}
}
