package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PutLicensee inserts or replaces a licensee configuration record.
func (s *Store) PutLicensee(ctx context.Context, licensee *Licensee) error {
	if licensee == nil {
		return errors.New("licensee is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO licensees (licensee_id, licensee_name, manifest_frequency, queue_name)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(licensee_id) DO UPDATE SET
             licensee_name = excluded.licensee_name,
             manifest_frequency = excluded.manifest_frequency,
             queue_name = excluded.queue_name`,
		licensee.LicenseeID,
		licensee.LicenseeName,
		licensee.ManifestFrequency,
		licensee.QueueName,
	)
	if err != nil {
		return fmt.Errorf("put licensee: %w", err)
	}
	return nil
}

// GetLicensee fetches licensee configuration by identifier.
func (s *Store) GetLicensee(ctx context.Context, licenseeID string) (*Licensee, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT licensee_id, licensee_name, manifest_frequency, queue_name FROM licensees WHERE licensee_id = ?`,
		licenseeID,
	)
	var licensee Licensee
	err := row.Scan(&licensee.LicenseeID, &licensee.LicenseeName, &licensee.ManifestFrequency, &licensee.QueueName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("licensee %s: %w", licenseeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get licensee: %w", err)
	}
	return &licensee, nil
}

// PutStudioConfig inserts or replaces per-studio defaulting windows.
func (s *Store) PutStudioConfig(ctx context.Context, studio *StudioConfig) error {
	if studio == nil {
		return errors.New("studio config is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO studio_configs (studio_id, studio_name, due_date_window, earliest_delivery, exception_notification, exception_recipients)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(studio_id) DO UPDATE SET
             studio_name = excluded.studio_name,
             due_date_window = excluded.due_date_window,
             earliest_delivery = excluded.earliest_delivery,
             exception_notification = excluded.exception_notification,
             exception_recipients = excluded.exception_recipients`,
		studio.StudioID,
		studio.StudioName,
		studio.DueDateWindow,
		studio.EarliestDelivery,
		studio.ExceptionNotification,
		strings.Join(studio.ExceptionRecipients, ","),
	)
	if err != nil {
		return fmt.Errorf("put studio config: %w", err)
	}
	return nil
}

// GetStudioConfig fetches per-studio defaulting windows by identifier.
func (s *Store) GetStudioConfig(ctx context.Context, studioID string) (*StudioConfig, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT studio_id, studio_name, due_date_window, earliest_delivery, exception_notification, exception_recipients
         FROM studio_configs WHERE studio_id = ?`,
		studioID,
	)
	var (
		studio     StudioConfig
		recipients string
	)
	err := row.Scan(
		&studio.StudioID,
		&studio.StudioName,
		&studio.DueDateWindow,
		&studio.EarliestDelivery,
		&studio.ExceptionNotification,
		&recipients,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("studio %s: %w", studioID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get studio config: %w", err)
	}
	studio.ExceptionRecipients = RecipientsList(recipients)
	return &studio, nil
}

// PutComponentConfig inserts or replaces a component folder mapping.
func (s *Store) PutComponentConfig(ctx context.Context, cc *ComponentConfig) error {
	if cc == nil {
		return errors.New("component config is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO component_configs (component_id, folder_structure)
         VALUES (?, ?)
         ON CONFLICT(component_id) DO UPDATE SET folder_structure = excluded.folder_structure`,
		cc.ComponentID,
		cc.FolderStructure,
	)
	if err != nil {
		return fmt.Errorf("put component config: %w", err)
	}
	return nil
}

// GetComponentConfig fetches the folder mapping for a component.
func (s *Store) GetComponentConfig(ctx context.Context, componentID string) (*ComponentConfig, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT component_id, folder_structure FROM component_configs WHERE component_id = ?`,
		componentID,
	)
	var cc ComponentConfig
	err := row.Scan(&cc.ComponentID, &cc.FolderStructure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component config %s: %w", componentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get component config: %w", err)
	}
	return &cc, nil
}

// ComponentConfigs returns every component folder mapping.
func (s *Store) ComponentConfigs(ctx context.Context) ([]*ComponentConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT component_id, folder_structure FROM component_configs ORDER BY component_id`)
	if err != nil {
		return nil, fmt.Errorf("component configs: %w", err)
	}
	defer rows.Close()

	var configs []*ComponentConfig
	for rows.Next() {
		var cc ComponentConfig
		if err := rows.Scan(&cc.ComponentID, &cc.FolderStructure); err != nil {
			return nil, err
		}
		configs = append(configs, &cc)
	}
	return configs, rows.Err()
}
