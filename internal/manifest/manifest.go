// Package manifest builds the point-in-time delivery manifest for a DA:
// the join of DA, title, licensee, and studio records with the catalog
// assets that are mapped to a component folder and confirmed present in
// storage.
package manifest

// Licensee-facing file status vocabulary.
const (
	StatusNew      = "New"
	StatusRevised  = "Revised"
	StatusNoChange = "No Change"
)

// MainBody is the manifest header block.
type MainBody struct {
	DistributionAuthorizationID string `json:"distribution_authorization_id"`
	PayloadCreation             string `json:"payload_creation"`
	StudioID                    string `json:"studio_id"`
	StudioName                  string `json:"studio_name"`
	LicenseeID                  string `json:"licensee_id"`
	LicenseeName                string `json:"licensee_name"`
	DADescription               string `json:"da_description"`
	DueDate                     string `json:"due_date"`
	EarliestDeliveryDate        string `json:"earliest_delivery_date"`
	DeliveryEndDate             string `json:"delivery_end_date"`
	TitleID                     string `json:"title_id"`
	TitleName                   string `json:"title_name"`
	TitleEIDRID                 string `json:"title_eidr_id"`
	VersionID                   string `json:"version_id"`
	VersionName                 string `json:"version_name"`
	VersionEIDRID               string `json:"version_eidr_id"`
	ReleaseYear                 *int   `json:"release_year"`
}

// AssetEntry is one deliverable in the manifest.
type AssetEntry struct {
	AssetID               string  `json:"asset_id"`
	FileStatus            string  `json:"file_status"`
	FileName              string  `json:"file_name"`
	FolderPath            string  `json:"folder_path"`
	FilePath              string  `json:"file_path"`
	Checksum              string  `json:"checksum"`
	FileSizeMB            float64 `json:"file_size_mb"`
	StudioAssetID         string  `json:"studio_asset_id"`
	StudioRevisionNumber  string  `json:"studio_revision_number"`
	StudioRevisionNotes   string  `json:"studio_revision_notes"`
	StudioRevisionUrgency string  `json:"studio_revision_urgency"`
	RevisionID            int     `json:"revision_id"`
}

// Manifest is the full delivery payload sent to a licensee.
type Manifest struct {
	MainBody MainBody     `json:"main_body"`
	Assets   []AssetEntry `json:"assets"`
}

// ChangedAssetCount returns how many entries carry New or Revised status.
func (m *Manifest) ChangedAssetCount() int {
	count := 0
	for _, asset := range m.Assets {
		if asset.FileStatus == StatusNew || asset.FileStatus == StatusRevised {
			count++
		}
	}
	return count
}
