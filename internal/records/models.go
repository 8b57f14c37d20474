package records

import "strings"

// DeliveryStatus is the rollup state shared by DAs and components.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryPartial   DeliveryStatus = "PARTIAL"
	DeliveryCompleted DeliveryStatus = "COMPLETED"
)

// FileStatus is the per-asset tracker state.
type FileStatus string

const (
	FileNew      FileStatus = "NEW"
	FileRevised  FileStatus = "REVISED"
	FileNoChange FileStatus = "NO_CHANGE"
)

// ProcessStatus is the lifecycle of an uploaded asset package.
type ProcessStatus string

const (
	ProcessUploaded         ProcessStatus = "UPLOADED"
	ProcessValidStructure   ProcessStatus = "VALID_STRUCTURE"
	ProcessSuccess          ProcessStatus = "SUCCESS"
	ProcessMissingFiles     ProcessStatus = "MISSING_FILES"
	ProcessExtraFiles       ProcessStatus = "EXTRA_FILES"
	ProcessMismatchChecksum ProcessStatus = "MISMATCH_CHECKSUM"
	ProcessInvalidCSV       ProcessStatus = "INVALID_CSV"
	ProcessFailed           ProcessStatus = "FAILED"
)

// DA is a Distribution Authorization: a licensing request to deliver a
// title's assets to a licensee within a license window.
type DA struct {
	ID                        string
	TitleID                   string
	VersionID                 string
	LicenseeID                string
	Description               string
	DueDate                   string
	EarliestDeliveryDate      string
	LicensePeriodStart        string
	LicensePeriodEnd          string
	Territories               string
	ExceptionNotificationDate string
	ExceptionRecipients       string
	InternalStudioID          string
	IsActive                  bool
	DeliveryStatus            DeliveryStatus
	OriginalDeliveryDate      string
	DateLastDelivered         string
	NextManifestCheck         string
	CreatedAt                 string
}

// Component is one required deliverable category of a DA, mapped to a
// storage folder prefix through ComponentConfig.
type Component struct {
	DAID                 string
	ComponentID          string
	TitleID              string
	VersionID            string
	Required             bool
	WatermarkRequired    bool
	DeliveryStatus       DeliveryStatus
	OriginalDeliveryDate string
	DateLastDelivered    string
	CreatedAt            string
}

// Title is catalog metadata for a (title, version) pair. Created once
// at ingestion and never overwritten.
type Title struct {
	TitleID       string
	VersionID     string
	TitleName     string
	TitleEIDRID   string
	VersionName   string
	VersionEIDRID string
	ReleaseYear   string
	Uploader      string
	CreatedAt     string
}

// Asset is one deliverable file in the catalog. Version increases
// monotonically per (folder, filename) on content change.
type Asset struct {
	AssetID               string
	TitleID               string
	VersionID             string
	Filename              string
	Checksum              string
	FolderPath            string
	Version               int
	CreationDate          string
	StudioAssetID         string
	StudioRevisionNumber  string
	StudioRevisionNotes   string
	StudioRevisionUrgency string
	StudioSystemName      string
}

// Tracker is the per-(DA, asset) delivery state row.
type Tracker struct {
	DAID                  string
	AssetID               string
	Filename              string
	Checksum              string
	Version               int
	FileStatus            FileStatus
	OriginalDeliveryDate  string
	DateLastDelivered     string
	RevisionCount         int
	ComponentID           string
	LicenseeID            string
	FolderPath            string
	TitleID               string
	VersionID             string
	StudioAssetID         string
	StudioRevisionNotes   string
	StudioRevisionUrgency string
}

// Licensee holds per-licensee delivery configuration.
type Licensee struct {
	LicenseeID        string
	LicenseeName      string
	ManifestFrequency int // seconds between manifest transmissions
	QueueName         string
}

// StudioConfig holds per-studio defaulting windows, in days.
type StudioConfig struct {
	StudioID              string
	StudioName            string
	DueDateWindow         int
	EarliestDelivery      int
	ExceptionNotification int
	ExceptionRecipients   []string
}

// ComponentConfig maps a component to its storage folder prefix.
type ComponentConfig struct {
	ComponentID     string
	FolderStructure string
}

// IngestPackage tracks one uploaded package (keyed by folder prefix)
// through structure and content validation.
type IngestPackage struct {
	IngestID      string
	AssetPath     string
	ProcessStatus ProcessStatus
	CreatedAt     string
}

// WatermarkJob records one submission to the external watermarking API.
type WatermarkJob struct {
	JobID         string
	SourceBucket  string
	SourceKey     string
	WatermarkType string
	PresetID      string
	Status        string
	OutputKey     string
	OutputURI     string
	APIJobID      string
	WMID          string
	Error         string
	CreatedAt     string
	UpdatedAt     string
}

// RecipientsList splits a comma-joined recipients field into trimmed
// non-empty addresses.
func RecipientsList(joined string) []string {
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
