package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const titleColumns = "title_id, version_id, title_name, title_eidr_id, version_name, version_eidr_id, release_year, uploader, created_at"

const assetColumns = "asset_id, title_id, version_id, filename, checksum, folder_path, version, creation_date, studio_asset_id, studio_revision_number, studio_revision_notes, studio_revision_urgency, studio_system_name"

// CreateTitle inserts a title record only when no record exists for the
// (title, version) pair. Returns ErrAlreadyExists otherwise.
func (s *Store) CreateTitle(ctx context.Context, title *Title) error {
	if title == nil {
		return errors.New("title is nil")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO titles (`+titleColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(title_id, version_id) DO NOTHING`,
		title.TitleID,
		title.VersionID,
		title.TitleName,
		title.TitleEIDRID,
		title.VersionName,
		title.VersionEIDRID,
		title.ReleaseYear,
		title.Uploader,
		title.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("title %s/%s: %w", title.TitleID, title.VersionID, ErrAlreadyExists)
	}
	return nil
}

// GetTitle fetches a title by (title, version) pair.
func (s *Store) GetTitle(ctx context.Context, titleID, versionID string) (*Title, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+titleColumns+` FROM titles WHERE title_id = ? AND version_id = ?`,
		titleID,
		versionID,
	)
	var title Title
	err := row.Scan(
		&title.TitleID,
		&title.VersionID,
		&title.TitleName,
		&title.TitleEIDRID,
		&title.VersionName,
		&title.VersionEIDRID,
		&title.ReleaseYear,
		&title.Uploader,
		&title.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("title %s/%s: %w", titleID, versionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get title: %w", err)
	}
	return &title, nil
}

// PutAsset inserts or fully replaces a catalog asset record.
func (s *Store) PutAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (`+assetColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(asset_id) DO UPDATE SET
             title_id = excluded.title_id,
             version_id = excluded.version_id,
             filename = excluded.filename,
             checksum = excluded.checksum,
             folder_path = excluded.folder_path,
             version = excluded.version,
             creation_date = excluded.creation_date,
             studio_asset_id = excluded.studio_asset_id,
             studio_revision_number = excluded.studio_revision_number,
             studio_revision_notes = excluded.studio_revision_notes,
             studio_revision_urgency = excluded.studio_revision_urgency,
             studio_system_name = excluded.studio_system_name`,
		asset.AssetID,
		asset.TitleID,
		asset.VersionID,
		asset.Filename,
		asset.Checksum,
		asset.FolderPath,
		asset.Version,
		asset.CreationDate,
		asset.StudioAssetID,
		asset.StudioRevisionNumber,
		asset.StudioRevisionNotes,
		asset.StudioRevisionUrgency,
		asset.StudioSystemName,
	)
	if err != nil {
		return fmt.Errorf("put asset: %w", err)
	}
	return nil
}

// GetAsset fetches a catalog asset by identifier.
func (s *Store) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE asset_id = ?`, assetID)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// AssetsForTitle returns every catalog asset for a (title, version) pair.
func (s *Store) AssetsForTitle(ctx context.Context, titleID, versionID string) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE title_id = ? AND version_id = ? ORDER BY folder_path, filename`,
		titleID,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("assets for title: %w", err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

// AssetsByFolder returns catalog assets stored under an exact folder path,
// newest version first.
func (s *Store) AssetsByFolder(ctx context.Context, folderPath string) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE folder_path = ? ORDER BY version DESC`,
		folderPath,
	)
	if err != nil {
		return nil, fmt.Errorf("assets by folder: %w", err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

func collectAssets(rows *sql.Rows) ([]*Asset, error) {
	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var asset Asset
	if err := scanner.Scan(
		&asset.AssetID,
		&asset.TitleID,
		&asset.VersionID,
		&asset.Filename,
		&asset.Checksum,
		&asset.FolderPath,
		&asset.Version,
		&asset.CreationDate,
		&asset.StudioAssetID,
		&asset.StudioRevisionNumber,
		&asset.StudioRevisionNotes,
		&asset.StudioRevisionUrgency,
		&asset.StudioSystemName,
	); err != nil {
		return nil, err
	}
	return &asset, nil
}
