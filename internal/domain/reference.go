package domain

import "time"

// ReferenceImage is an uploaded color image used as the style source for
// colorization. Records are immutable except for deletion.
type ReferenceImage struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}
