package domain

// FileEntry is one declared file in a dataset's manifest: its name and
// whether the caller wants it kept private.
type FileEntry struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
}
