package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCollection = errors.New("collection name is required")
	errMissingDocumentID = errors.New("document identifier is required")
	errMissingField      = errors.New("field name is required")
	noOpLogger           = zap.NewNop()
)

// StoreError carries an operation-scoped failure code alongside its cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew     = "store.new"
	opAdd          = "store.add"
	opList         = "store.list"
	opGetSingleton = "store.get_singleton"
	opSetSingleton = "store.set_singleton"
	opDelete       = "store.delete"
	opQueryByField = "store.query_by_field"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// Config captures the dependencies of the document store.
type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists keyed documents grouped into named collections. Each
// document is a JSON field map plus a store-assigned identifier and an
// integer timestamp used as the ordering key within its collection.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger
}

// New constructs a Store from its configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDProvider,
		logger: logger,
	}, nil
}

// Add appends a document to the collection and returns its assigned
// identifier. The ordering key is taken from the "timestamp" field when
// present, otherwise from the store clock.
func (s *Store) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	if collection == "" {
		return "", newStoreError(opAdd, "missing_collection", errMissingCollection)
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logError(opAdd, "id_generation_failed", err, zap.String("collection", collection))
		return "", newStoreError(opAdd, "id_generation_failed", err)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		s.logError(opAdd, "encode_failed", err, zap.String("collection", collection))
		return "", newStoreError(opAdd, "encode_failed", err)
	}

	timestamp, ok := fields.Int(FieldTimestamp)
	if !ok {
		timestamp = s.clock().UTC().UnixMilli()
	}

	document := Document{
		Collection:      collection,
		DocID:           id,
		PayloadJSON:     string(payload),
		TimestampMillis: timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opAdd, "insert_failed", err, zap.String("collection", collection))
		return "", newStoreError(opAdd, "insert_failed", err)
	}

	return id, nil
}

// List returns every document in the collection ordered by ascending
// timestamp. Ties break on document identifier so the ordering is stable.
func (s *Store) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if collection == "" {
		return nil, newStoreError(opList, "missing_collection", errMissingCollection)
	}

	var documents []Document
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("timestamp_ms ASC, doc_id ASC").
		Find(&documents).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("collection", collection))
		return nil, newStoreError(opList, "query_failed", err)
	}

	snapshots := make([]Snapshot, 0, len(documents))
	for _, document := range documents {
		fields, err := decodeFields(document.PayloadJSON)
		if err != nil {
			s.logError(opList, "decode_failed", err,
				zap.String("collection", collection),
				zap.String("doc_id", document.DocID))
			return nil, newStoreError(opList, "decode_failed", err)
		}
		snapshots = append(snapshots, Snapshot{ID: document.DocID, Fields: fields})
	}

	return snapshots, nil
}

// GetSingleton reads the document at a well-known identifier. An absent
// document is reported through the boolean, not as an error.
func (s *Store) GetSingleton(ctx context.Context, collection, docID string) (Fields, bool, error) {
	if collection == "" {
		return nil, false, newStoreError(opGetSingleton, "missing_collection", errMissingCollection)
	}
	if docID == "" {
		return nil, false, newStoreError(opGetSingleton, "missing_doc_id", errMissingDocumentID)
	}

	var document Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, docID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		s.logError(opGetSingleton, "query_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", docID))
		return nil, false, newStoreError(opGetSingleton, "query_failed", err)
	}

	fields, err := decodeFields(document.PayloadJSON)
	if err != nil {
		s.logError(opGetSingleton, "decode_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", docID))
		return nil, false, newStoreError(opGetSingleton, "decode_failed", err)
	}
	return fields, true, nil
}

// SetSingleton writes the document at a well-known identifier, replacing any
// previous fields outright.
func (s *Store) SetSingleton(ctx context.Context, collection, docID string, fields Fields) error {
	if collection == "" {
		return newStoreError(opSetSingleton, "missing_collection", errMissingCollection)
	}
	if docID == "" {
		return newStoreError(opSetSingleton, "missing_doc_id", errMissingDocumentID)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		s.logError(opSetSingleton, "encode_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", docID))
		return newStoreError(opSetSingleton, "encode_failed", err)
	}

	timestamp, ok := fields.Int(FieldTimestamp)
	if !ok {
		timestamp = s.clock().UTC().UnixMilli()
	}

	document := Document{
		Collection:      collection,
		DocID:           docID,
		PayloadJSON:     string(payload),
		TimestampMillis: timestamp,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload_json", "timestamp_ms"}),
		}).
		Create(&document).Error
	if err != nil {
		s.logError(opSetSingleton, "write_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", docID))
		return newStoreError(opSetSingleton, "write_failed", err)
	}
	return nil
}

// Delete removes the identified document. Deleting an identifier that no
// longer exists is a no-op, matching keyed document service semantics.
func (s *Store) Delete(ctx context.Context, collection, docID string) error {
	if collection == "" {
		return newStoreError(opDelete, "missing_collection", errMissingCollection)
	}
	if docID == "" {
		return newStoreError(opDelete, "missing_doc_id", errMissingDocumentID)
	}

	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, docID).
		Delete(&Document{}).Error
	if err != nil {
		s.logError(opDelete, "delete_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", docID))
		return newStoreError(opDelete, "delete_failed", err)
	}
	return nil
}

// QueryByField returns the first document, in timestamp order, whose named
// field equals the given value. Equality is exact; strings compare
// case-sensitively.
func (s *Store) QueryByField(ctx context.Context, collection, field string, value any) (Snapshot, bool, error) {
	if collection == "" {
		return Snapshot{}, false, newStoreError(opQueryByField, "missing_collection", errMissingCollection)
	}
	if field == "" {
		return Snapshot{}, false, newStoreError(opQueryByField, "missing_field", errMissingField)
	}

	var document Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND json_extract(payload_json, ?) = ?", collection, "$."+field, value).
		Order("timestamp_ms ASC, doc_id ASC").
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		s.logError(opQueryByField, "query_failed", err,
			zap.String("collection", collection),
			zap.String("field", field))
		return Snapshot{}, false, newStoreError(opQueryByField, "query_failed", err)
	}

	fields, err := decodeFields(document.PayloadJSON)
	if err != nil {
		s.logError(opQueryByField, "decode_failed", err,
			zap.String("collection", collection),
			zap.String("doc_id", document.DocID))
		return Snapshot{}, false, newStoreError(opQueryByField, "decode_failed", err)
	}
	return Snapshot{ID: document.DocID, Fields: fields}, true, nil
}

func decodeFields(payload string) (Fields, error) {
	if payload == "" {
		return Fields{}, nil
	}
	var fields Fields
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("document store error", attrs...)
}
