package ingest

import (
	"encoding/csv"
	"strconv"
	"strings"

	"manifold/internal/pathutil"
	"manifold/internal/records"
	"manifold/internal/services"
)

// Package manifest layout: title key/value rows through row 11, the
// asset column header on row 12, asset data from row 13 on.
const assetHeaderRow = 11

// AssetRow is one data row of a package manifest. Columns are
// positional: creation date, filename, checksum, folder path, then the
// optional studio annotation columns.
type AssetRow struct {
	CreationDate     string
	Filename         string
	Checksum         string
	FolderPath       string
	RevisionNotes    string
	RevisionUrgency  string
	StudioAssetID    string
	StudioSystemName string
}

// PackageManifest is the parsed form of an upload package's CSV.
type PackageManifest struct {
	Title records.Title
	Rows  []AssetRow
}

var (
	titleRequiredFields = []string{"Title Name", "Title ID", "Version Name", "Version ID", "Release Year"}
	assetRequiredCols   = []string{"Folder Path", "Filename", "Checksum"}
)

// ValidatePackageManifest checks the CSV's structure: the required
// title fields must be present and non-empty, the asset section must
// carry the required columns, and every data row must fill them.
func ValidatePackageManifest(content []byte) error {
	rows, err := readRows(content)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ingest", "validate_manifest", "csv parse", err)
	}

	headerIdx := -1
	for idx, row := range rows {
		if rowContains(row, "Filename") {
			headerIdx = idx
			break
		}
	}
	if headerIdx < 0 {
		return services.Wrap(services.ErrValidation, "ingest", "validate_manifest", "no asset header row", nil)
	}

	titleKV := make(map[string]string)
	for _, row := range rows[:headerIdx] {
		if len(row) >= 2 && strings.TrimSpace(row[0]) != "" {
			titleKV[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
		}
	}
	for _, field := range titleRequiredFields {
		if titleKV[field] == "" {
			return services.Wrap(services.ErrValidation, "ingest", "validate_manifest",
				"missing required title field: "+field, nil)
		}
	}

	header := rows[headerIdx]
	colIndex := make(map[string]int, len(header))
	for i, cell := range header {
		colIndex[strings.TrimSpace(cell)] = i
	}
	for _, col := range assetRequiredCols {
		if _, ok := colIndex[col]; !ok {
			return services.Wrap(services.ErrValidation, "ingest", "validate_manifest",
				"missing required asset column: "+col, nil)
		}
	}
	for i, row := range rows[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		for _, col := range assetRequiredCols {
			idx := colIndex[col]
			if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
				return services.Wrap(services.ErrValidation, "ingest", "validate_manifest",
					"empty "+col+" in asset row "+strconv.Itoa(headerIdx+i+2), nil)
			}
		}
	}
	return nil
}

// ParsePackageManifest extracts the title block and asset data rows.
// Callers validate first; parsing is positional and lenient.
func ParsePackageManifest(content []byte) (*PackageManifest, error) {
	rows, err := readRows(content)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "parse_manifest", "csv parse", err)
	}

	titleKV := make(map[string]string)
	limit := assetHeaderRow
	if limit > len(rows) {
		limit = len(rows)
	}
	for _, row := range rows[:limit] {
		if len(row) < 2 {
			continue
		}
		name := strings.TrimSpace(row[0])
		value := strings.TrimSpace(row[1])
		if name != "" && value != "" {
			titleKV[name] = value
		}
	}

	uploader := titleKV["Uploader"]
	if uploader == "" {
		uploader = "SYSTEM"
	}
	manifest := &PackageManifest{
		Title: records.Title{
			TitleID:       titleKV["Title ID"],
			VersionID:     titleKV["Version ID"],
			TitleName:     titleKV["Title Name"],
			TitleEIDRID:   titleKV["Title EIDR ID"],
			VersionName:   titleKV["Version Name"],
			VersionEIDRID: titleKV["Version EIDR ID"],
			ReleaseYear:   titleKV["Release Year"],
			Uploader:      uploader,
		},
	}

	if len(rows) <= assetHeaderRow+1 {
		return manifest, nil
	}
	for _, row := range rows[assetHeaderRow+1:] {
		if isEmptyRow(row) || len(row) < 3 {
			continue
		}
		manifest.Rows = append(manifest.Rows, AssetRow{
			CreationDate:     cell(row, 0),
			Filename:         cell(row, 1),
			Checksum:         strings.Trim(cell(row, 2), `"`),
			FolderPath:       pathutil.Normalize(cell(row, 3)),
			RevisionNotes:    cell(row, 4),
			RevisionUrgency:  cell(row, 5),
			StudioAssetID:    cell(row, 6),
			StudioSystemName: cell(row, 7),
		})
	}
	return manifest, nil
}

func readRows(content []byte) ([][]string, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func rowContains(row []string, needle string) bool {
	for _, cell := range row {
		if strings.Contains(cell, needle) {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
