package chat

import (
	"encoding/json"
	"os"

	"github.com/go-mud/go-mud-portal/lib/util"
)

// Entry is one chat history item as persisted: the append timestamp and the
// opaque payload (channel, name, msg, plus whatever else the client sent).
type Entry struct {
	Date string         `json:"date"`
	Data map[string]any `json:"data"`
}

// Load reads the chat history file. A missing file, unreadable content,
// malformed JSON, or a non-array top level all yield an empty history; the
// bus starts fresh rather than refusing to start.
func Load(path string) []Entry {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// Save rewrites the whole history file. Callers serialize writes; the most
// recent write wins on file content.
func Save(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	return os.WriteFile(path, []byte(util.EncodeJSON(entries)), 0o644)
}
