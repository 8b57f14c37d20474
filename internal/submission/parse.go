package submission

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"manifold/internal/normalize"
	"manifold/internal/services"
)

// ComponentInput is one deliverable category declared in a submission.
type ComponentInput struct {
	ComponentID       string
	Required          bool
	WatermarkRequired bool
}

// Required display-name fields of a submission's main body.
var requiredMainFields = []string{
	"Licensee ID",
	"Title ID",
	"Version ID",
	"Release Year",
	"License Period Start",
	"License Period End",
}

// ParseCSV splits a submission file into its main body and component
// section. The main body is key/value rows up to a divider row beginning
// "Component ID,Required Flag"; everything after the divider is component
// rows. A missing divider is a validation error.
func ParseCSV(content string) (*normalize.Record, []ComponentInput, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_csv", "malformed csv", err)
	}

	dividerIndex := -1
	for i, row := range rows {
		if len(row) >= 2 && strings.TrimSpace(row[0]) == "Component ID" && strings.TrimSpace(row[1]) == "Required Flag" {
			dividerIndex = i
			break
		}
	}
	if dividerIndex < 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_csv", "component section divider not found", nil)
	}

	mainBody := make(map[string]string)
	for _, row := range rows[:dividerIndex] {
		if len(row) < 1 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		value := ""
		if len(row) > 1 {
			value = strings.TrimSpace(row[1])
		}
		mainBody[strings.TrimSpace(row[0])] = value
	}

	var components []ComponentInput
	for _, row := range rows[dividerIndex+1:] {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		component := ComponentInput{
			ComponentID: strings.TrimSpace(row[0]),
			Required:    parseFlag(row[1]),
		}
		if len(row) > 2 {
			component.WatermarkRequired = parseFlag(row[2])
		}
		components = append(components, component)
	}

	if err := validateMainBody(mainBody); err != nil {
		return nil, nil, err
	}
	if len(components) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_csv", "no components found", nil)
	}
	return recordFromMainBody(mainBody), components, nil
}

type jsonPayload struct {
	MainBodyAttributes map[string]json.RawMessage `json:"main_body_attributes"`
	Components         []map[string]string        `json:"components"`
}

// ParseJSON interprets the structured submission form: a
// main_body_attributes object whose values are either plain strings or
// wrapped {"Value": ...} objects, plus a components list.
func ParseJSON(payload []byte) (*normalize.Record, []ComponentInput, error) {
	var parsed jsonPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_json", "malformed payload", err)
	}
	if parsed.MainBodyAttributes == nil {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_json", "missing main_body_attributes", nil)
	}
	if parsed.Components == nil {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_json", "missing components", nil)
	}

	mainBody := make(map[string]string, len(parsed.MainBodyAttributes))
	for key, raw := range parsed.MainBodyAttributes {
		mainBody[key] = extractValue(raw)
	}

	var components []ComponentInput
	for idx, comp := range parsed.Components {
		id := strings.TrimSpace(comp["Component ID"])
		if id == "" {
			return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_json",
				fmt.Sprintf("component at index %d missing Component ID", idx), nil)
		}
		components = append(components, ComponentInput{
			ComponentID:       id,
			Required:          parseFlag(comp["Required Flag"]),
			WatermarkRequired: parseFlag(comp["Watermark Required"]),
		})
	}

	if err := validateMainBody(mainBody); err != nil {
		return nil, nil, err
	}
	if len(components) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "submission", "parse_json", "no components found", nil)
	}
	return recordFromMainBody(mainBody), components, nil
}

// extractValue unwraps either a bare JSON string or a {"Value": "..."}
// attribute object.
func extractValue(raw json.RawMessage) string {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	var wrapped struct {
		Value string `json:"Value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return strings.TrimSpace(wrapped.Value)
	}
	return ""
}

func validateMainBody(mainBody map[string]string) error {
	var missing []string
	for _, field := range requiredMainFields {
		if strings.TrimSpace(mainBody[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrValidation, "submission", "validate",
			"missing required fields: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func recordFromMainBody(mainBody map[string]string) *normalize.Record {
	return &normalize.Record{
		TitleID:                   mainBody["Title ID"],
		TitleName:                 mainBody["Title Name"],
		TitleEIDRID:               mainBody["Title EIDR ID"],
		VersionID:                 mainBody["Version ID"],
		VersionName:               mainBody["Version Name"],
		VersionEIDRID:             mainBody["Version EIDR ID"],
		ReleaseYear:               mainBody["Release Year"],
		LicenseeID:                mainBody["Licensee ID"],
		Description:               mainBody["DA Description"],
		DueDate:                   mainBody["Due Date"],
		EarliestDeliveryDate:      mainBody["Earliest Delivery Date"],
		LicensePeriodStart:        mainBody["License Period Start"],
		LicensePeriodEnd:          mainBody["License Period End"],
		Territories:               mainBody["Territories"],
		ExceptionNotificationDate: mainBody["Exception Notification Date"],
		ExceptionRecipients:       mainBody["Exception Recipients"],
		InternalStudioID:          mainBody["Internal Studio ID"],
		StudioSystemID:            mainBody["Studio System ID"],
	}
}

func parseFlag(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "TRUE")
}
