package testsupport

import (
	"context"
	"testing"

	"manifold/internal/config"
	"manifold/internal/dates"
	"manifold/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewDA persists a minimal active DA for tests and returns it.
func NewDA(t testing.TB, store *records.Store, daID, titleID, versionID, licenseeID string) *records.DA {
	t.Helper()

	da := &records.DA{
		ID:             daID,
		TitleID:        titleID,
		VersionID:      versionID,
		LicenseeID:     licenseeID,
		IsActive:       true,
		DeliveryStatus: records.DeliveryPending,
		CreatedAt:      dates.Now(),
	}
	if err := store.PutDA(context.Background(), da); err != nil {
		t.Fatalf("store.PutDA: %v", err)
	}
	return da
}
