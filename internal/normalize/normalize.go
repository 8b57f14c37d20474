// Package normalize applies studio defaulting rules to a freshly
// submitted distribution authorization: canonical license dates, derived
// due and delivery windows, and fallback notification settings.
package normalize

import (
	"strings"

	"manifold/internal/dates"
	"manifold/internal/records"
	"manifold/internal/services"
)

// Record is a submitted DA before persistence, carrying the catalog
// fields that only live on the title record plus everything the DA keeps.
type Record struct {
	TitleID                   string
	TitleName                 string
	TitleEIDRID               string
	VersionID                 string
	VersionName               string
	VersionEIDRID             string
	ReleaseYear               string
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
	StudioSystemID            string
}

// ApplyDefaults fills absent derived fields from the studio configuration
// and canonicalizes every supplied date. A supplied but unparseable date
// is a validation error, never silently defaulted. Fields already present
// in the submission are kept (after canonicalization), never recomputed.
func ApplyDefaults(rec *Record, studio *records.StudioConfig) error {
	if rec == nil {
		return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "record is nil", nil)
	}

	var (
		dueDateWindow         int
		earliestDelivery      int
		exceptionNotification int
		exceptionRecipients   []string
	)
	if studio != nil {
		dueDateWindow = studio.DueDateWindow
		earliestDelivery = studio.EarliestDelivery
		exceptionNotification = studio.ExceptionNotification
		exceptionRecipients = studio.ExceptionRecipients
	}

	if rec.LicensePeriodStart != "" {
		converted, err := dates.ToZulu(rec.LicensePeriodStart)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "license period start", err)
		}
		rec.LicensePeriodStart = converted
	}
	if rec.LicensePeriodEnd != "" {
		converted, err := dates.ToZulu(rec.LicensePeriodEnd)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "license period end", err)
		}
		rec.LicensePeriodEnd = converted
	}

	if rec.DueDate == "" {
		if rec.LicensePeriodStart != "" && dueDateWindow > 0 {
			due, err := dates.SubtractDays(rec.LicensePeriodStart, dueDateWindow)
			if err != nil {
				return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "due date", err)
			}
			rec.DueDate = due
		}
	} else {
		converted, err := dates.ToZulu(rec.DueDate)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "due date", err)
		}
		rec.DueDate = converted
	}

	if rec.EarliestDeliveryDate == "" && rec.DueDate != "" {
		if earliestDelivery > 0 {
			earliest, err := dates.SubtractDays(rec.DueDate, earliestDelivery)
			if err != nil {
				return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "earliest delivery", err)
			}
			rec.EarliestDeliveryDate = earliest
		} else {
			// A zero window means delivery opens exactly at the due date.
			rec.EarliestDeliveryDate = rec.DueDate
		}
	} else if rec.EarliestDeliveryDate != "" {
		converted, err := dates.ToZulu(rec.EarliestDeliveryDate)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "earliest delivery", err)
		}
		rec.EarliestDeliveryDate = converted
	}

	if rec.ExceptionNotificationDate == "" && rec.DueDate != "" && exceptionNotification > 0 {
		exception, err := dates.SubtractDays(rec.DueDate, exceptionNotification)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "exception notification", err)
		}
		rec.ExceptionNotificationDate = exception
	} else if rec.ExceptionNotificationDate != "" {
		converted, err := dates.ToZulu(rec.ExceptionNotificationDate)
		if err != nil {
			return services.Wrap(services.ErrValidation, "normalize", "apply_defaults", "exception notification", err)
		}
		rec.ExceptionNotificationDate = converted
	}

	if rec.ExceptionRecipients == "" && len(exceptionRecipients) > 0 {
		rec.ExceptionRecipients = strings.Join(exceptionRecipients, ",")
	}

	if rec.Description == "" {
		rec.Description = buildDescription(rec)
	}
	return nil
}

// buildDescription renders "{title} - {version} to {licensee} in
// {territories}" preferring display names and omitting empty segments.
func buildDescription(rec *Record) string {
	title := rec.TitleName
	if title == "" {
		title = rec.TitleID
	}
	if title == "" {
		title = "Unknown"
	}
	version := rec.VersionName
	if version == "" {
		version = rec.VersionID
	}
	licensee := rec.LicenseeID
	if licensee == "" {
		licensee = "Unknown"
	}

	description := title
	if version != "" {
		description += " - " + version
	}
	description += " to " + licensee
	if rec.Territories != "" {
		description += " in " + rec.Territories
	}
	return description
}
