package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const daColumns = "id, title_id, version_id, licensee_id, description, due_date, earliest_delivery_date, license_period_start, license_period_end, territories, exception_notification_date, exception_recipients, internal_studio_id, is_active, delivery_status, original_delivery_date, date_last_delivered, next_manifest_check, created_at"

// PutDA inserts or fully replaces a distribution authorization record.
func (s *Store) PutDA(ctx context.Context, da *DA) error {
	if da == nil {
		return errors.New("da is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO das (`+daColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             title_id = excluded.title_id,
             version_id = excluded.version_id,
             licensee_id = excluded.licensee_id,
             description = excluded.description,
             due_date = excluded.due_date,
             earliest_delivery_date = excluded.earliest_delivery_date,
             license_period_start = excluded.license_period_start,
             license_period_end = excluded.license_period_end,
             territories = excluded.territories,
             exception_notification_date = excluded.exception_notification_date,
             exception_recipients = excluded.exception_recipients,
             internal_studio_id = excluded.internal_studio_id,
             is_active = excluded.is_active,
             delivery_status = excluded.delivery_status,
             original_delivery_date = excluded.original_delivery_date,
             date_last_delivered = excluded.date_last_delivered,
             next_manifest_check = excluded.next_manifest_check`,
		da.ID,
		da.TitleID,
		da.VersionID,
		da.LicenseeID,
		da.Description,
		da.DueDate,
		da.EarliestDeliveryDate,
		da.LicensePeriodStart,
		da.LicensePeriodEnd,
		da.Territories,
		da.ExceptionNotificationDate,
		da.ExceptionRecipients,
		da.InternalStudioID,
		boolToInt(da.IsActive),
		da.DeliveryStatus,
		da.OriginalDeliveryDate,
		da.DateLastDelivered,
		da.NextManifestCheck,
		da.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put da: %w", err)
	}
	return nil
}

// GetDA fetches a distribution authorization by identifier.
func (s *Store) GetDA(ctx context.Context, daID string) (*DA, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+daColumns+` FROM das WHERE id = ?`, daID)
	da, err := scanDA(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("da %s: %w", daID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get da: %w", err)
	}
	return da, nil
}

// ListDAs returns every distribution authorization ordered by creation time.
func (s *Store) ListDAs(ctx context.Context) ([]*DA, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+daColumns+` FROM das ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list das: %w", err)
	}
	defer rows.Close()

	var das []*DA
	for rows.Next() {
		da, err := scanDA(rows)
		if err != nil {
			return nil, err
		}
		das = append(das, da)
	}
	return das, rows.Err()
}

// SetDAActive toggles the active flag without touching delivery state.
func (s *Store) SetDAActive(ctx context.Context, daID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE das SET is_active = ? WHERE id = ?`, boolToInt(active), daID)
	if err != nil {
		return fmt.Errorf("set da active: %w", err)
	}
	return nil
}

// UpdateDADelivery persists a recomputed delivery rollup for a DA.
func (s *Store) UpdateDADelivery(ctx context.Context, daID string, status DeliveryStatus, originalDeliveryDate, dateLastDelivered string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE das SET delivery_status = ?, original_delivery_date = ?, date_last_delivered = ? WHERE id = ?`,
		status,
		originalDeliveryDate,
		dateLastDelivered,
		daID,
	)
	if err != nil {
		return fmt.Errorf("update da delivery: %w", err)
	}
	return nil
}

// SetNextManifestCheck records when the next manifest transmission is allowed.
func (s *Store) SetNextManifestCheck(ctx context.Context, daID, next string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE das SET next_manifest_check = ? WHERE id = ?`, next, daID)
	if err != nil {
		return fmt.Errorf("set next manifest check: %w", err)
	}
	return nil
}

func scanDA(scanner interface{ Scan(dest ...any) error }) (*DA, error) {
	var (
		da       DA
		isActive int
		status   string
	)
	if err := scanner.Scan(
		&da.ID,
		&da.TitleID,
		&da.VersionID,
		&da.LicenseeID,
		&da.Description,
		&da.DueDate,
		&da.EarliestDeliveryDate,
		&da.LicensePeriodStart,
		&da.LicensePeriodEnd,
		&da.Territories,
		&da.ExceptionNotificationDate,
		&da.ExceptionRecipients,
		&da.InternalStudioID,
		&isActive,
		&status,
		&da.OriginalDeliveryDate,
		&da.DateLastDelivered,
		&da.NextManifestCheck,
		&da.CreatedAt,
	); err != nil {
		return nil, err
	}
	da.IsActive = isActive != 0
	da.DeliveryStatus = DeliveryStatus(status)
	return &da, nil
}
