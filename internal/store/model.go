package store

import "encoding/json"

// Collection names used by the archive.
const (
	CollectionNotes     = "notes"
	CollectionInventory = "inventory"
	CollectionShop      = "shop"
	CollectionMeta      = "meta"
)

// Well-known singleton document identifiers inside the meta collection.
const (
	SingletonTemperature = "temperature"
	SingletonBroadcast   = "broadcast"
	SingletonGold        = "gold"
)

// FieldTimestamp is the field that orders documents inside a collection.
// Values are milliseconds since the Unix epoch.
const FieldTimestamp = "timestamp"

// Fields holds the decoded field map of one document.
type Fields map[string]any

// String returns the named field as a string when present.
func (f Fields) String(key string) (string, bool) {
	value, ok := f[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// Int returns the named field as an int64 when present. JSON decoding
// produces float64 for numbers, so integral floats are accepted too.
func (f Fields) Int(key string) (int64, bool) {
	value, ok := f[key]
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case float64:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Snapshot pairs a document identifier with its decoded fields.
type Snapshot struct {
	ID     string
	Fields Fields
}

// Document is the persisted row backing one archive document.
type Document struct {
	Collection      string `gorm:"column:collection;primaryKey;size:190;not null;index:idx_documents_collection_time,priority:1"`
	DocID           string `gorm:"column:doc_id;primaryKey;size:190;not null"`
	PayloadJSON     string `gorm:"column:payload_json;type:text;not null"`
	TimestampMillis int64  `gorm:"column:timestamp_ms;not null;index:idx_documents_collection_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}
