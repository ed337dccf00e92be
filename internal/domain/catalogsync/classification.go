package catalogsync

import (
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
)

// Classification is the reconciliation decision for one record
type Classification string

const (
	ClassificationAdd      Classification = "ADD"
	ClassificationUpdate   Classification = "UPDATE"
	ClassificationSkip     Classification = "SKIP"
	ClassificationConflict Classification = "CONFLICT"
	ClassificationDelete   Classification = "DELETE"
)

// IsValid checks if the classification is a known value
func (c Classification) IsValid() bool {
	switch c {
	case ClassificationAdd, ClassificationUpdate, ClassificationSkip,
		ClassificationConflict, ClassificationDelete:
		return true
	}
	return false
}

// String returns the string representation
func (c Classification) String() string {
	return string(c)
}

// Writes reports whether applying the classification touches the store
func (c Classification) Writes() bool {
	return c == ClassificationAdd || c == ClassificationUpdate || c == ClassificationDelete
}

// MatchKind tells how a canonical product was matched to a local one
type MatchKind string

const (
	MatchNone     MatchKind = ""
	MatchRemoteID MatchKind = "remote_id"
	MatchCode     MatchKind = "code"
)

// FieldChange is one compared field whose value differs
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Decision is the classification of one canonical product, or of one local
// product for deletions, together with the evidence behind it
type Decision struct {
	Classification Classification
	RemoteID       int64
	Local          *catalog.Product
	MatchedBy      MatchKind
	Changes        []FieldChange
	Reason         string
}

// ChangedFields lists the names of the changed fields
func (d Decision) ChangedFields() []string {
	names := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		names = append(names, c.Field)
	}
	return names
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
