// Package records persists delivery state in SQLite: distribution
// authorizations, their components, the title and asset catalog, per-DA
// delivery trackers, licensee and studio configuration, upload package
// lifecycle rows, and watermark job records.
//
// The Store owns the database connection and schema initialization. All
// timestamps are stored as canonical Zulu strings so comparisons work
// lexicographically. Conditional creates (titles, watermark jobs) report
// ErrAlreadyExists rather than overwriting; everything else is an upsert.
//
// Schema changes bump the version in schema.go; the database is recreated
// rather than migrated.
package records
