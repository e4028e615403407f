package models

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DataEntry is a single key-tagged text value inside a DataObject.
// KeyList carries provenance/join keys: a fresh UUID for ingested entries,
// or the union of upstream keys plus a fresh UUID for derived entries.
type DataEntry struct {
	KeyList      []string `bson:"key_list" json:"key_list"`
	Value        string   `bson:"value" json:"value"`
	SummaryValue *string  `bson:"summary_value,omitempty" json:"summary_value,omitempty"`
}

// SharesKey reports whether two entries have at least one key in common
func (e DataEntry) SharesKey(other DataEntry) bool {
	if len(e.KeyList) == 0 || len(other.KeyList) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(e.KeyList))
	for _, k := range e.KeyList {
		set[k] = struct{}{}
	}
	for _, k := range other.KeyList {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// DataObject is a named, caller-scoped, append-only list of entries.
// (Scope, Name) is the identity of an object.
type DataObject struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Scope     string             `bson:"scope" json:"-"`
	Name      string             `bson:"object_name" json:"object_name"`
	Data      []DataEntry        `bson:"data" json:"data"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Keys returns the deduplicated set of keys across all entries, in first-seen order
func (o *DataObject) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, entry := range o.Data {
		for _, k := range entry.KeyList {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Mode controls how an input object's entries participate in combination building
type Mode string

const (
	ModeCombineEvents   Mode = "combine_events"
	ModeUseIndividually Mode = "use_individually"
	ModeMatchKeys       Mode = "match_keys"
)

// ParseMode converts a raw string into a Mode, rejecting unknown values
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCombineEvents, ModeUseIndividually, ModeMatchKeys:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unsupported mode %q: must be one of combine_events, use_individually, match_keys", s)
	}
}

// UnmarshalJSON validates the mode while decoding a request body
func (m *Mode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("mode must be a string: %w", err)
	}
	parsed, err := ParseMode(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// InputSpec binds one input object to a combination mode
type InputSpec struct {
	InputObjectName string `json:"input_object_name"`
	Mode            Mode   `json:"mode"`
}

// DataType is the kind of items submitted to the ingest endpoint
type DataType string

const (
	DataTypeStrings DataType = "strings"
	DataTypeFiles   DataType = "files"
	DataTypeURLs    DataType = "urls"
)

// ParseDataType converts a raw string into a DataType, rejecting unknown values
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case DataTypeStrings, DataTypeFiles, DataTypeURLs:
		return DataType(s), nil
	default:
		return "", fmt.Errorf("invalid data_type %q: must be 'files', 'strings', or 'urls'", s)
	}
}

// InputDataRequest is the body of POST /input_data
type InputDataRequest struct {
	CreatedObjectName string            `json:"created_object_name"`
	DataType          string            `json:"data_type"`
	InputData         []json.RawMessage `json:"input_data"`
}

// FileUpload is a file submitted inline to the ingest endpoint
type FileUpload struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
}

// ApplyPromptRequest is the body of POST /apply_prompt
type ApplyPromptRequest struct {
	CreatedObjectNames []string    `json:"created_object_names"`
	PromptString       string      `json:"prompt_string"`
	Inputs             []InputSpec `json:"inputs"`
}

// SharedKeysSummary describes how a related object overlaps with the primary object
type SharedKeysSummary struct {
	ObjectName     string   `json:"object_name"`
	SharedKeys     []string `json:"shared_keys"`
	SharedKeyCount int      `json:"shared_key_count"`
}

// RelatedObjects is the response of GET /return_data/:name
type RelatedObjects struct {
	ObjectName        string              `json:"object_name"`
	TextValue         string              `json:"text_value"`
	Data              []DataEntry         `json:"data"`
	RelatedObjects    []*DataObject       `json:"related_objects"`
	TotalObjects      int                 `json:"total_objects"`
	SharedKeysSummary []SharedKeysSummary `json:"shared_keys_summary"`
	PrimaryObjectKeys []string            `json:"primary_object_keys"`
}
