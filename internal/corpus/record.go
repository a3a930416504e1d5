// Package corpus reads statuses from JSON-lines corpora: a single file
// (optionally gzip-compressed), a directory of such files, or a Kafka topic.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
)

// record is the wire shape of one status: the Twitter API object, trimmed to
// the fields the index needs. A flat screen_name is accepted too.
type record struct {
	ID         int64  `json:"id"`
	CreatedAt  string `json:"created_at"`
	Text       string `json:"text"`
	ScreenName string `json:"screen_name,omitempty"`
	User       *struct {
		ScreenName string `json:"screen_name"`
	} `json:"user,omitempty"`
}

// Decode parses one JSON line into a Status. Missing fields decode to zero
// values; nothing is trimmed or normalised.
func Decode(line []byte) (status.Status, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return status.Status{}, fmt.Errorf("decoding status: %w", err)
	}
	s := status.Status{
		ID:         r.ID,
		ScreenName: r.ScreenName,
		CreatedAt:  r.CreatedAt,
		Text:       r.Text,
	}
	if r.User != nil && r.User.ScreenName != "" {
		s.ScreenName = r.User.ScreenName
	}
	return s, nil
}

// Encode renders s in the Twitter shape Decode reads.
func Encode(s status.Status) ([]byte, error) {
	r := record{ID: s.ID, CreatedAt: s.CreatedAt, Text: s.Text}
	r.User = &struct {
		ScreenName string `json:"screen_name"`
	}{ScreenName: s.ScreenName}
	return json.Marshal(r)
}

func blank(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0
}
