// Package dualstore resolves documents from the relational store first and from the legacy flat-file
// directory second. Flat-file hits are handed to a MigrationQueue that writes them back into the relational store.
//
// The two backends are not updated atomically: a Resolve racing a Write may observe either state.
// A single administrator edits the data at a time, so last write wins.
package dualstore

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/legacykey"
)

var (
	// errors
	ErrNotFound           = errors.New("document not found")
	ErrBackendUnavailable = errors.New("relational store unavailable")
	errInvalidDocument    = errors.New("document must be valid JSON")
)

type Source int

const (
	SourcePrimary Source = iota + 1
	SourceFile
)

func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "database"
	case SourceFile:
		return "file"
	default:
		return "none"
	}
}

type (
	Document struct {
		Key    legacykey.Key
		Data   json.RawMessage
		Source Source
	}

	// Primary is the relational side. Lookup returns ErrNotFound (possibly wrapped) for missing documents.
	Primary interface {
		Lookup(ctx context.Context, key legacykey.Key) (json.RawMessage, error)
		Store(ctx context.Context, key legacykey.Key, doc json.RawMessage) error
	}

	// Files is the flat-file side, scoped to one data directory. Missing files are reported with os.ErrNotExist.
	Files interface {
		ReadFile(name string) ([]byte, error)
		WriteFile(name string, data []byte) error
		Exists(name string) (bool, error)
		List() ([]string, error)
		Remove(name string) error
	}

	Store struct {
		primary Primary
		files   Files
		queue   *MigrationQueue
		logger  core.Logger
	}
)

func NewStore(primary Primary, files Files, queue *MigrationQueue, logger core.Logger) *Store {
	return &Store{primary: primary, files: files, queue: queue, logger: logger}
}

// IsNotFound reports whether err means that no backend holds the document.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// Resolve looks key up in the relational store, then in the data directory.
// A document found only on disk is queued for migration and returned; the migration never fails the read.
// When the relational store fails, files are still served and ErrBackendUnavailable is returned only when the
// file is missing too.
func (s *Store) Resolve(ctx context.Context, key legacykey.Key) (Document, error) {
	data, err := s.primary.Lookup(ctx, key)
	if err == nil {
		return Document{Key: key, Data: data, Source: SourcePrimary}, nil
	}

	primaryErr := err
	if IsNotFound(err) {
		primaryErr = nil
	} else if core.IsValidationError(err) {
		return Document{}, err
	} else {
		s.logger.Warn("database lookup failed, falling back to flat files", errors.Wrap(err, key.String()))
	}

	data, err = s.readFile(key)
	switch {
	case err == nil:
		s.queue.Enqueue(key, data)
		return Document{Key: key, Data: data, Source: SourceFile}, nil
	case core.IsValidationError(err):
		return Document{}, err
	case !IsNotFound(err):
		s.logger.Warn("reading flat file", errors.Wrap(err, key.String()))
	}

	if primaryErr != nil {
		return Document{}, errors.Wrapf(ErrBackendUnavailable, "%s: %v", key, primaryErr)
	}
	return Document{}, ErrNotFound
}

// Write stores doc in the relational store. Group rosters are also written to their flat file so that
// directory-based tooling keeps seeing them; a failed mirror is logged and does not fail the write.
// Evaluation sets are merged record by record, so one that only exists on disk is migrated before the merge.
func (s *Store) Write(ctx context.Context, key legacykey.Key, doc json.RawMessage) error {
	name, err := legacykey.Render(key)
	if err != nil {
		return err
	}
	if !json.Valid(doc) {
		return core.NewValidationError(errInvalidDocument, core.FieldError{Field: "document", Error: errInvalidDocument.Error()})
	}

	if key.Kind == legacykey.KindEvaluationSet {
		if err = s.Migrate(ctx, key); err != nil {
			return err
		}
	}

	if err = s.primary.Store(ctx, key, doc); err != nil {
		return errors.Wrapf(err, "storing %s", key)
	}

	if key.Kind.IsGroups() {
		if err = s.files.WriteFile(name, doc); err != nil {
			s.logger.Warn("mirroring group roster to flat file", errors.Wrap(err, name))
		}
	}
	return nil
}

// Migrate copies the flat file of key into the relational store unless the store already holds the document.
// A missing file is not an error.
func (s *Store) Migrate(ctx context.Context, key legacykey.Key) error {
	_, err := s.primary.Lookup(ctx, key)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return errors.Wrapf(err, "looking up %s", key)
	}

	data, err := s.readFile(key)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(s.primary.Store(ctx, key, data), "migrating %s", key)
}

// RemoveFiles deletes the flat files of keys so that removed documents are not served from disk again.
// Missing files are ignored.
func (s *Store) RemoveFiles(keys ...legacykey.Key) error {
	for _, key := range keys {
		name, err := legacykey.Render(key)
		if err != nil {
			return err
		}
		if err = s.files.Remove(name); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrap(err, "removing "+name)
		}
	}
	return nil
}

// FileNames lists the documents of the data directory.
func (s *Store) FileNames() ([]string, error) {
	return s.files.List()
}

func (s *Store) readFile(key legacykey.Key) (json.RawMessage, error) {
	name, err := legacykey.Render(key)
	if err != nil {
		return nil, err
	}
	data, err := s.files.ReadFile(name)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "reading "+name)
	}
	if !json.Valid(data) {
		s.logger.Warn("ignoring flat file with invalid JSON", map[string]interface{}{"file": name})
		return nil, ErrNotFound
	}
	return data, nil
}
