package processor

import (
	"context"
	"fmt"
	"os"

	"scenecast/internal/models"
	"scenecast/internal/ports"
	"scenecast/internal/render"
	"scenecast/internal/worker/util"
)

// AssetStore records uploaded objects.
type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
}

type OutputHandler struct {
	assets AssetStore
	sp     ports.StorageProvider
}

func NewOutputHandler(assets AssetStore, sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{assets: assets, sp: sp}
}

// RegisterOutput uploads the artifact and records it as an asset.
func (oh *OutputHandler) RegisterOutput(ctx context.Context, jobID string, art render.Artifact) (*models.Asset, error) {
	f, err := os.Open(art.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	const mime = "video/mp4"
	up, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ports.RenderVideoKey(jobID),
		ContentType: mime,
		Reader:      f,
		Size:        art.SizeBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload artifact: %w", err)
	}

	asset := &models.Asset{
		ID:        util.NewID("ast"),
		Kind:      models.AssetRenderOutput,
		Provider:  oh.sp.Provider(),
		ObjectKey: up.ObjectKey,
		Mime:      mime,
		SizeBytes: up.Size,
		Label:     fmt.Sprintf("%d frames @ %d fps", art.FrameCount, art.FPS),
	}
	if err := oh.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to register asset in DB: %w", err)
	}
	return asset, nil
}
