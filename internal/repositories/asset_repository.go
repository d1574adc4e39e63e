package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scenecast/internal/models"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetRepository struct {
	db *pgxpool.Pool
}

func NewAssetRepository(db *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO assets (id, kind, provider, object_key, mime, size_bytes, label)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, a.ID, a.Kind, a.Provider, a.ObjectKey, a.Mime, a.SizeBytes, nullIfEmpty(a.Label)).Scan(&a.CreatedAt)
}

func (r *AssetRepository) Get(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	err := r.db.QueryRow(ctx, `
		SELECT id, kind, provider, object_key, mime, size_bytes, COALESCE(label,''), created_at
		FROM assets
		WHERE id=$1
	`, id).Scan(&a.ID, &a.Kind, &a.Provider, &a.ObjectKey, &a.Mime, &a.SizeBytes, &a.Label, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return &a, nil
}
