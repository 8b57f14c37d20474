package ingest_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"manifold/internal/ingest"
	"manifold/internal/services"
)

const manifestHeader = "Creation Date,Filename,Checksum,Folder Path,Revision Notes,Revision Urgency,Studio Asset ID,Studio System Name"

// buildManifest lays out a package manifest with the title block padded
// to eleven rows, the asset header on the twelfth, and data rows after.
func buildManifest(titleKV [][2]string, header string, dataRows []string) []byte {
	var b strings.Builder
	count := 0
	for _, kv := range titleKV {
		fmt.Fprintf(&b, "%s,%s\n", kv[0], kv[1])
		count++
	}
	for ; count < 11; count++ {
		b.WriteString(",\n")
	}
	b.WriteString(header + "\n")
	for _, row := range dataRows {
		b.WriteString(row + "\n")
	}
	return []byte(b.String())
}

func defaultTitleKV() [][2]string {
	return [][2]string{
		{"Title Name", "Glass Harbor"},
		{"Title ID", "TTL1"},
		{"Title EIDR ID", "10.5240/AAAA-0001"},
		{"Version Name", "Director's Cut"},
		{"Version ID", "V1"},
		{"Release Year", "2024"},
		{"Uploader", "ops@studio.test"},
	}
}

func TestValidatePackageManifest(t *testing.T) {
	content := buildManifest(defaultTitleKV(), manifestHeader, []string{
		"2024-05-01,feature.mov,abc123,TTL1.V1/Feature/Video/feature.mov,,,SA-1,MediaVault",
	})
	if err := ingest.ValidatePackageManifest(content); err != nil {
		t.Fatalf("ValidatePackageManifest: %v", err)
	}
}

func TestValidatePackageManifestStripsBOM(t *testing.T) {
	content := buildManifest(defaultTitleKV(), manifestHeader, []string{
		"2024-05-01,feature.mov,abc123,TTL1.V1/Feature/Video/feature.mov",
	})
	withBOM := append([]byte("\ufeff"), content...)
	if err := ingest.ValidatePackageManifest(withBOM); err != nil {
		t.Fatalf("ValidatePackageManifest with BOM: %v", err)
	}
}

func TestValidatePackageManifestRejections(t *testing.T) {
	missingTitleField := defaultTitleKV()
	missingTitleField[5] = [2]string{"Release Year", ""}

	cases := map[string][]byte{
		"missing title field": buildManifest(missingTitleField, manifestHeader, []string{
			"2024-05-01,feature.mov,abc123,TTL1.V1/Feature/feature.mov",
		}),
		"no asset header": buildManifest(defaultTitleKV(),
			"Creation Date,Name,Checksum,Folder Path", nil),
		"missing checksum column": buildManifest(defaultTitleKV(),
			"Creation Date,Filename,Folder Path", []string{
				"2024-05-01,feature.mov,TTL1.V1/Feature/feature.mov",
			}),
		"empty checksum cell": buildManifest(defaultTitleKV(), manifestHeader, []string{
			"2024-05-01,feature.mov,,TTL1.V1/Feature/feature.mov",
		}),
	}
	for name, content := range cases {
		if err := ingest.ValidatePackageManifest(content); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestParsePackageManifest(t *testing.T) {
	content := buildManifest(defaultTitleKV(), manifestHeader, []string{
		`2024-05-01,feature.mov,"abc123",TTL1.V1\Feature\Video\feature.mov,fixed audio,HIGH,SA-1,MediaVault`,
		"2024-05-02,poster.jpg,def456,TTL1.V1/Artwork/poster.jpg,,,SA-2,MediaVault",
		",,,",
	})
	manifest, err := ingest.ParsePackageManifest(content)
	if err != nil {
		t.Fatalf("ParsePackageManifest: %v", err)
	}

	title := manifest.Title
	if title.TitleID != "TTL1" || title.VersionID != "V1" || title.TitleName != "Glass Harbor" {
		t.Fatalf("unexpected title block: %+v", title)
	}
	if title.ReleaseYear != "2024" || title.Uploader != "ops@studio.test" {
		t.Fatalf("unexpected title metadata: %+v", title)
	}

	if len(manifest.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(manifest.Rows))
	}
	first := manifest.Rows[0]
	if first.Checksum != "abc123" {
		t.Fatalf("checksum quotes not trimmed: %q", first.Checksum)
	}
	if first.FolderPath != "TTL1.V1/Feature/Video/feature.mov" {
		t.Fatalf("folder path not normalized: %q", first.FolderPath)
	}
	if first.RevisionNotes != "fixed audio" || first.RevisionUrgency != "HIGH" {
		t.Fatalf("revision annotations lost: %+v", first)
	}
	if first.StudioAssetID != "SA-1" || first.StudioSystemName != "MediaVault" {
		t.Fatalf("studio annotations lost: %+v", first)
	}
}

func TestParsePackageManifestUploaderDefault(t *testing.T) {
	kv := defaultTitleKV()[:6]
	manifest, err := ingest.ParsePackageManifest(buildManifest(kv, manifestHeader, nil))
	if err != nil {
		t.Fatalf("ParsePackageManifest: %v", err)
	}
	if manifest.Title.Uploader != "SYSTEM" {
		t.Fatalf("uploader = %q, want SYSTEM", manifest.Title.Uploader)
	}
	if len(manifest.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(manifest.Rows))
	}
}
