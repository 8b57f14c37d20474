package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const trackerColumns = "da_id, asset_id, filename, checksum, version, file_status, original_delivery_date, date_last_delivered, revision_count, component_id, licensee_id, folder_path, title_id, version_id, studio_asset_id, studio_revision_notes, studio_revision_urgency"

// PutTracker inserts or fully replaces a delivery tracker row.
func (s *Store) PutTracker(ctx context.Context, tracker *Tracker) error {
	if tracker == nil {
		return errors.New("tracker is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO trackers (`+trackerColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(da_id, asset_id) DO UPDATE SET
             filename = excluded.filename,
             checksum = excluded.checksum,
             version = excluded.version,
             file_status = excluded.file_status,
             original_delivery_date = excluded.original_delivery_date,
             date_last_delivered = excluded.date_last_delivered,
             revision_count = excluded.revision_count,
             component_id = excluded.component_id,
             licensee_id = excluded.licensee_id,
             folder_path = excluded.folder_path,
             title_id = excluded.title_id,
             version_id = excluded.version_id,
             studio_asset_id = excluded.studio_asset_id,
             studio_revision_notes = excluded.studio_revision_notes,
             studio_revision_urgency = excluded.studio_revision_urgency`,
		tracker.DAID,
		tracker.AssetID,
		tracker.Filename,
		tracker.Checksum,
		tracker.Version,
		tracker.FileStatus,
		tracker.OriginalDeliveryDate,
		tracker.DateLastDelivered,
		tracker.RevisionCount,
		tracker.ComponentID,
		tracker.LicenseeID,
		tracker.FolderPath,
		tracker.TitleID,
		tracker.VersionID,
		tracker.StudioAssetID,
		tracker.StudioRevisionNotes,
		tracker.StudioRevisionUrgency,
	)
	if err != nil {
		return fmt.Errorf("put tracker: %w", err)
	}
	return nil
}

// GetTracker fetches the delivery tracker row for a (DA, asset) pair.
func (s *Store) GetTracker(ctx context.Context, daID, assetID string) (*Tracker, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE da_id = ? AND asset_id = ?`,
		daID,
		assetID,
	)
	tracker, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracker %s/%s: %w", daID, assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return tracker, nil
}

// TrackersForDA returns every tracker row of a DA ordered by asset identifier.
func (s *Store) TrackersForDA(ctx context.Context, daID string) ([]*Tracker, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE da_id = ? ORDER BY asset_id`,
		daID,
	)
	if err != nil {
		return nil, fmt.Errorf("trackers for da: %w", err)
	}
	defer rows.Close()

	var trackers []*Tracker
	for rows.Next() {
		tracker, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, tracker)
	}
	return trackers, rows.Err()
}

func scanTracker(scanner interface{ Scan(dest ...any) error }) (*Tracker, error) {
	var (
		tracker Tracker
		status  string
	)
	if err := scanner.Scan(
		&tracker.DAID,
		&tracker.AssetID,
		&tracker.Filename,
		&tracker.Checksum,
		&tracker.Version,
		&status,
		&tracker.OriginalDeliveryDate,
		&tracker.DateLastDelivered,
		&tracker.RevisionCount,
		&tracker.ComponentID,
		&tracker.LicenseeID,
		&tracker.FolderPath,
		&tracker.TitleID,
		&tracker.VersionID,
		&tracker.StudioAssetID,
		&tracker.StudioRevisionNotes,
		&tracker.StudioRevisionUrgency,
	); err != nil {
		return nil, err
	}
	tracker.FileStatus = FileStatus(status)
	return &tracker, nil
}
