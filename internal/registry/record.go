// Package registry keeps the durable, ordered list of registered face images.
package registry

import (
	"strconv"

	"github.com/kozaktomas/face-verify/internal/constants"
)

// Record references one stored face image. Its ordinal is its 1-based
// position in the registry.
type Record struct {
	Location string `json:"location"`
}

// Entry is a record together with its ordinal and label, for listings.
type Entry struct {
	Ordinal  int    `json:"ordinal"`
	Label    string `json:"label"`
	Location string `json:"location"`
}

// Snapshot is the registry as read from durable storage.
type Snapshot struct {
	Records []Record
	// Recovered is set when the stored document existed but could not be
	// parsed and was treated as empty.
	Recovered bool
}

// Len returns the number of records.
func (s Snapshot) Len() int {
	return len(s.Records)
}

// Empty reports whether there are no registered faces.
func (s Snapshot) Empty() bool {
	return len(s.Records) == 0
}

// Entries returns the records with their ordinals and labels.
func (s Snapshot) Entries() []Entry {
	entries := make([]Entry, len(s.Records))
	for i, r := range s.Records {
		entries[i] = Entry{Ordinal: i + 1, Label: Label(i + 1), Location: r.Location}
	}
	return entries
}

// Label returns the human readable label for the record at ordinal.
func Label(ordinal int) string {
	return constants.LabelPrefix + strconv.Itoa(ordinal)
}

// FileName returns the image file name for the record at ordinal.
func FileName(ordinal int) string {
	return Label(ordinal) + constants.ImageExt
}

// Locations extracts the locations of records, preserving order.
func Locations(records []Record) []string {
	locs := make([]string, len(records))
	for i, r := range records {
		locs[i] = r.Location
	}
	return locs
}

// FromLocations builds records from locations, preserving order.
func FromLocations(locs []string) []Record {
	records := make([]Record, len(locs))
	for i, l := range locs {
		records[i] = Record{Location: l}
	}
	return records
}
