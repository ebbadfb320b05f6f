// Package domain contains the core data model shared across the agent.
package domain

// Book is one library entry as read from a Calibre catalog.
//
// A Book is immutable per sync cycle: the library cache is replaced
// wholesale on refresh and individual records are never mutated in place.
type Book struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Authors     string   `json:"authors"` // Display string, comma separated.
	Path        string   `json:"path"`    // Directory relative to the library root.
	CoverURL    string   `json:"cover_url,omitempty"`
	Series      string   `json:"series,omitempty"`
	SeriesIndex float64  `json:"series_index,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Formats     []string `json:"formats,omitempty"` // Lowercase extensions known to exist.
}

// HasFormat reports whether the book's catalog entry lists the given
// lowercase extension.
func (b *Book) HasFormat(ext string) bool {
	for _, f := range b.Formats {
		if f == ext {
			return true
		}
	}
	return false
}

// ConnectionInfo describes how peers can reach this agent on the LAN.
// The PIN field stays empty on the wire; the pairing PIN is surfaced in
// the host's log only.
type ConnectionInfo struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
	PIN      string `json:"pin,omitempty"`
}
