package engine

// Metadata is the pre-download probe result for a URL
type Metadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
	IsLive     bool    `json:"is_live"`
	Type       string  `json:"_type"`
	Entries    []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"entries"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// IsPlaylist reports whether the probed URL resolves to multiple entries
func (m *Metadata) IsPlaylist() bool {
	return m.Type == "playlist" || len(m.Entries) > 1
}

// EntryURLs returns the source URL of every playlist entry
func (m *Metadata) EntryURLs() []string {
	urls := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		urls = append(urls, e.URL)
	}
	return urls
}

// EntryCount returns the number of playlist entries, 1 for single media
func (m *Metadata) EntryCount() int {
	if n := len(m.Entries); n > 0 {
		return n
	}
	return 1
}
