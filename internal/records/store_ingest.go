package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutIngestPackage inserts or replaces an upload package record.
func (s *Store) PutIngestPackage(ctx context.Context, pkg *IngestPackage) error {
	if pkg == nil {
		return errors.New("ingest package is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ingest_packages (ingest_id, asset_path, process_status, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(ingest_id) DO UPDATE SET
             asset_path = excluded.asset_path,
             process_status = excluded.process_status`,
		pkg.IngestID,
		pkg.AssetPath,
		pkg.ProcessStatus,
		pkg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put ingest package: %w", err)
	}
	return nil
}

// GetIngestPackage fetches an upload package record by identifier.
func (s *Store) GetIngestPackage(ctx context.Context, ingestID string) (*IngestPackage, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT ingest_id, asset_path, process_status, created_at FROM ingest_packages WHERE ingest_id = ?`,
		ingestID,
	)
	pkg, err := scanIngestPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest package %s: %w", ingestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ingest package: %w", err)
	}
	return pkg, nil
}

// IngestPackagesByStatus returns upload packages in a lifecycle state,
// oldest first.
func (s *Store) IngestPackagesByStatus(ctx context.Context, status ProcessStatus) ([]*IngestPackage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT ingest_id, asset_path, process_status, created_at FROM ingest_packages WHERE process_status = ? ORDER BY created_at`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("ingest packages by status: %w", err)
	}
	defer rows.Close()

	var packages []*IngestPackage
	for rows.Next() {
		pkg, err := scanIngestPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// UpdateIngestStatus moves an upload package to a new lifecycle state.
func (s *Store) UpdateIngestStatus(ctx context.Context, ingestID string, status ProcessStatus) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingest_packages SET process_status = ? WHERE ingest_id = ?`,
		status,
		ingestID,
	)
	if err != nil {
		return fmt.Errorf("update ingest status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ingest package %s: %w", ingestID, ErrNotFound)
	}
	return nil
}

// UpdateIngestStatusByPath moves every package under an upload path to a new
// lifecycle state. Returns the number of records changed.
func (s *Store) UpdateIngestStatusByPath(ctx context.Context, assetPath string, status ProcessStatus) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingest_packages SET process_status = ? WHERE asset_path = ?`,
		status,
		assetPath,
	)
	if err != nil {
		return 0, fmt.Errorf("update ingest status by path: %w", err)
	}
	return res.RowsAffected()
}

func scanIngestPackage(scanner interface{ Scan(dest ...any) error }) (*IngestPackage, error) {
	var (
		pkg    IngestPackage
		status string
	)
	if err := scanner.Scan(&pkg.IngestID, &pkg.AssetPath, &status, &pkg.CreatedAt); err != nil {
		return nil, err
	}
	pkg.ProcessStatus = ProcessStatus(status)
	return &pkg, nil
}
