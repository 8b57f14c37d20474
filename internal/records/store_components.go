package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const componentColumns = "da_id, component_id, title_id, version_id, required, watermark_required, delivery_status, original_delivery_date, date_last_delivered, created_at"

// PutComponent inserts or fully replaces a component record.
func (s *Store) PutComponent(ctx context.Context, component *Component) error {
	if component == nil {
		return errors.New("component is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO components (`+componentColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(da_id, component_id) DO UPDATE SET
             title_id = excluded.title_id,
             version_id = excluded.version_id,
             required = excluded.required,
             watermark_required = excluded.watermark_required,
             delivery_status = excluded.delivery_status,
             original_delivery_date = excluded.original_delivery_date,
             date_last_delivered = excluded.date_last_delivered`,
		component.DAID,
		component.ComponentID,
		component.TitleID,
		component.VersionID,
		boolToInt(component.Required),
		boolToInt(component.WatermarkRequired),
		component.DeliveryStatus,
		component.OriginalDeliveryDate,
		component.DateLastDelivered,
		component.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put component: %w", err)
	}
	return nil
}

// GetComponent fetches one component of a DA.
func (s *Store) GetComponent(ctx context.Context, daID, componentID string) (*Component, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+componentColumns+` FROM components WHERE da_id = ? AND component_id = ?`,
		daID,
		componentID,
	)
	component, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component %s/%s: %w", daID, componentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get component: %w", err)
	}
	return component, nil
}

// ComponentsForDA returns all components of a DA ordered by identifier.
func (s *Store) ComponentsForDA(ctx context.Context, daID string) ([]*Component, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+componentColumns+` FROM components WHERE da_id = ? ORDER BY component_id`,
		daID,
	)
	if err != nil {
		return nil, fmt.Errorf("components for da: %w", err)
	}
	defer rows.Close()

	var components []*Component
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, component)
	}
	return components, rows.Err()
}

// UpdateComponentDelivery persists a recomputed delivery state for a component.
func (s *Store) UpdateComponentDelivery(ctx context.Context, daID, componentID string, status DeliveryStatus, originalDeliveryDate, dateLastDelivered string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE components SET delivery_status = ?, original_delivery_date = ?, date_last_delivered = ?
         WHERE da_id = ? AND component_id = ?`,
		status,
		originalDeliveryDate,
		dateLastDelivered,
		daID,
		componentID,
	)
	if err != nil {
		return fmt.Errorf("update component delivery: %w", err)
	}
	return nil
}

func scanComponent(scanner interface{ Scan(dest ...any) error }) (*Component, error) {
	var (
		component Component
		required  int
		watermark int
		status    string
	)
	if err := scanner.Scan(
		&component.DAID,
		&component.ComponentID,
		&component.TitleID,
		&component.VersionID,
		&required,
		&watermark,
		&status,
		&component.OriginalDeliveryDate,
		&component.DateLastDelivered,
		&component.CreatedAt,
	); err != nil {
		return nil, err
	}
	component.Required = required != 0
	component.WatermarkRequired = watermark != 0
	component.DeliveryStatus = DeliveryStatus(status)
	return &component, nil
}
