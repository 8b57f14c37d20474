package notifications

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"manifold/internal/missing"
)

var componentCaser = cases.Title(language.English)

// componentDisplayName renders a component identifier for email display,
// e.g. "DV_HDR" becomes "Dv Hdr".
func componentDisplayName(componentID string) string {
	if componentID == "" {
		return "Unknown"
	}
	cleaned := strings.NewReplacer("_", " ", "/", " / ").Replace(componentID)
	return componentCaser.String(strings.ToLower(cleaned))
}

// BuildMissingAssetsHTML renders the HTML body of a missing-assets alert.
func BuildMissingAssetsHTML(report *missing.Report) string {
	versionName := report.VersionName
	if versionName == "" {
		versionName = "N/A"
	}
	titleName := report.TitleName
	if titleName == "" {
		titleName = "Unknown"
	}
	licenseeID := report.LicenseeID
	if licenseeID == "" {
		licenseeID = "Unknown"
	}

	var b strings.Builder
	b.WriteString(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.header { background-color: #d32f2f; color: white; padding: 20px; text-align: center; }
.content { padding: 20px; }
.info-box { background-color: #f5f5f5; border-left: 4px solid #d32f2f; padding: 15px; margin: 20px 0; }
.info-box h3 { margin-top: 0; color: #d32f2f; }
.component { margin: 20px 0; padding: 15px; border: 1px solid #ddd; border-radius: 5px; }
.component h4 { margin-top: 0; color: #1976d2; }
.asset-list { list-style-type: none; padding-left: 0; }
.asset-list li { padding: 8px; margin: 5px 0; background-color: #fff3e0; border-left: 3px solid #ff9800; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #666; }
</style>
</head>
<body>
<div class="header"><h1>Missing Assets Alert</h1></div>
<div class="content">
<div class="info-box">
<h3>Distribution Authorization Details</h3>
`)
	fmt.Fprintf(&b, "<p><strong>DA ID:</strong> %s</p>\n", html.EscapeString(report.DAID))
	fmt.Fprintf(&b, "<p><strong>Title:</strong> %s</p>\n", html.EscapeString(titleName))
	fmt.Fprintf(&b, "<p><strong>Version:</strong> %s</p>\n", html.EscapeString(versionName))
	fmt.Fprintf(&b, "<p><strong>Licensee:</strong> %s</p>\n", html.EscapeString(licenseeID))
	fmt.Fprintf(&b, "<p><strong>Total Missing Assets:</strong> %d</p>\n", report.TotalMissingCount)
	b.WriteString("</div>\n<h2>Missing Components and Assets</h2>\n")

	for _, component := range report.MissingComponents {
		b.WriteString(`<div class="component">` + "\n")
		fmt.Fprintf(&b, "<h4>Component: %s</h4>\n", html.EscapeString(componentDisplayName(component.ComponentID)))
		fmt.Fprintf(&b, "<p><strong>Missing Assets Count:</strong> %d</p>\n", len(component.MissingAssets))
		b.WriteString(`<ul class="asset-list">` + "\n")
		for _, asset := range component.MissingAssets {
			filename := asset.Filename
			if filename == "" {
				filename = "Unknown"
			}
			fmt.Fprintf(&b, "<li><strong>%s</strong><br><small>%s</small></li>\n",
				html.EscapeString(filename), html.EscapeString(asset.FullPath))
		}
		b.WriteString("</ul>\n</div>\n")
	}

	b.WriteString(`<div class="footer">
<p>Please take necessary action to ensure these assets are delivered before the due date.</p>
<p>This is an automated notification from the Manifold distribution system.</p>
</div>
</div>
</body>
</html>
`)
	return b.String()
}

// BuildMissingAssetsText renders the plain-text body of a missing-assets
// alert.
func BuildMissingAssetsText(report *missing.Report) string {
	versionName := report.VersionName
	if versionName == "" {
		versionName = "N/A"
	}
	titleName := report.TitleName
	if titleName == "" {
		titleName = "Unknown"
	}
	licenseeID := report.LicenseeID
	if licenseeID == "" {
		licenseeID = "Unknown"
	}
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	b.WriteString("MISSING ASSETS ALERT\n")
	b.WriteString(rule + "\n\n")
	b.WriteString("Distribution Authorization Details:\n")
	fmt.Fprintf(&b, "- DA ID: %s\n", report.DAID)
	fmt.Fprintf(&b, "- Title: %s\n", titleName)
	fmt.Fprintf(&b, "- Version: %s\n", versionName)
	fmt.Fprintf(&b, "- Licensee: %s\n", licenseeID)
	fmt.Fprintf(&b, "- Total Missing Assets: %d\n\n", report.TotalMissingCount)
	b.WriteString(rule + "\n\n")
	b.WriteString("Missing Components and Assets:\n")

	for _, component := range report.MissingComponents {
		fmt.Fprintf(&b, "\nComponent: %s\n", componentDisplayName(component.ComponentID))
		fmt.Fprintf(&b, "Missing Assets Count: %d\n", len(component.MissingAssets))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, asset := range component.MissingAssets {
			filename := asset.Filename
			if filename == "" {
				filename = "Unknown"
			}
			fmt.Fprintf(&b, "  * %s\n", filename)
			fmt.Fprintf(&b, "    Path: %s\n", asset.FullPath)
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("Please take necessary action to ensure these assets are delivered before the due date.\n")
	b.WriteString("This is an automated notification from the Manifold distribution system.\n")
	return b.String()
}
