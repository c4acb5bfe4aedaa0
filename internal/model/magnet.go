package model

// Magnet describes a gated downloadable asset.
type Magnet struct {
	ID           string
	Title        string
	Tag          string
	DownloadPath string
}

// MagnetSOC2Checklist is the SOC 2 audit trail checklist.
const MagnetSOC2Checklist = "soc2-audit-trail-checklist"

// fallbackDownloadPath is returned for a redeemed magnet that is no longer in the catalog.
const fallbackDownloadPath = "/resources/download"

var magnets = map[string]Magnet{
	MagnetSOC2Checklist: {
		ID:           MagnetSOC2Checklist,
		Title:        "SOC 2 Audit Trail Checklist",
		Tag:          "soc2",
		DownloadPath: "/resources/soc2-audit-trail-checklist.pdf",
	},
}

// LookupMagnet returns the catalog entry for id.
func LookupMagnet(id string) (Magnet, bool) {
	m, ok := magnets[id]
	return m, ok
}

// DownloadPathFor returns the gated asset path for a magnet id.
func DownloadPathFor(id string) string {
	if m, ok := magnets[id]; ok {
		return m.DownloadPath
	}
	return fallbackDownloadPath
}

// TitleFor returns a human title for a magnet id.
func TitleFor(id string) string {
	if m, ok := magnets[id]; ok {
		return m.Title
	}
	return "Your resource"
}
