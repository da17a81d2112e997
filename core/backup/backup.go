// Package backup exports the database as a ZIP of legacy documents and restores such archives.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/legacykey"
)

const (
	// maxEntrySize bounds the uncompressed size of one archive entry.
	maxEntrySize = 64 << 20
	lookupLimit  = 8
)

var (
	// errors
	ErrInvalidArchive = errors.New("invalid archive")
	errEntryTooLarge  = errors.New("entry too large")
	errUnknownName    = errors.New("unrecognized file name")
	errNoStudy        = errors.New("no known study matches the file name")
)

type (
	// Store is the database side of the archive: legacydoc.Documents.
	Store interface {
		Entries(ctx context.Context) ([]legacydoc.Entry, error)
		Lookup(ctx context.Context, key legacykey.Key) (json.RawMessage, error)
		StoreCounted(ctx context.Context, key legacykey.Key, doc json.RawMessage) (int, error)
		StudyNames(ctx context.Context) ([]string, error)
		ClassNames(ctx context.Context) ([]string, error)
	}

	// Manifest lists the entries written by Export.
	Manifest struct {
		Entries []string `json:"entries"`
	}

	// RestoreReport counts the restored rows per collection. Errors holds one line per entry that failed.
	RestoreReport struct {
		Students    int      `json:"students"`
		Studies     int      `json:"studies"`
		Assignments int      `json:"assignments"`
		Evaluations int      `json:"evaluations"`
		ClassGroups int      `json:"classGroups"`
		StudyGroups int      `json:"studyGroups"`
		Skipped     int      `json:"skipped"`
		Errors      []string `json:"errors"`
	}

	Codec struct {
		store  Store
		logger core.Logger
		now    func() time.Time
	}

	entry struct {
		name   string
		data   []byte
		err    error
		parsed legacykey.Parsed
	}
)

func NewCodec(store Store, logger core.Logger) *Codec {
	return &Codec{store: store, logger: logger, now: time.Now}
}

// OK reports whether every entry was restored.
func (r RestoreReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *RestoreReport) count(kind legacykey.Kind, n int) {
	switch kind {
	case legacykey.KindRoster:
		r.Students += n
	case legacykey.KindStudy:
		r.Studies += n
	case legacykey.KindAssignment:
		r.Assignments += n
	case legacykey.KindEvaluationSet:
		r.Evaluations += n
	case legacykey.KindClassGroups:
		r.ClassGroups += n
	case legacykey.KindStudyGroups:
		r.StudyGroups += n
	}
}

func (r *RestoreReport) fail(name string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
}

// Export writes one ZIP entry per document held by the database, sorted by name.
func (c *Codec) Export(ctx context.Context, w io.Writer) (Manifest, error) {
	entries, err := c.store.Entries(ctx)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "listing documents")
	}

	docs := make([]json.RawMessage, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for i := range entries {
		i := i
		g.Go(func() error {
			doc, err := c.store.Lookup(gctx, entries[i].Key)
			if dualstore.IsNotFound(err) {
				return nil // emptied since listed
			}
			if err != nil {
				return errors.Wrapf(err, "rendering %s", entries[i].Name)
			}
			docs[i] = doc
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return Manifest{}, err
	}

	var manifest Manifest
	zw := zip.NewWriter(w)
	modified := c.now()
	for i, e := range entries {
		if docs[i] == nil {
			continue
		}
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return Manifest{}, errors.Wrapf(err, "adding %s", e.Name)
		}
		if _, err = f.Write(docs[i]); err != nil {
			return Manifest{}, errors.Wrapf(err, "writing %s", e.Name)
		}
		manifest.Entries = append(manifest.Entries, e.Name)
	}
	if err = zw.Close(); err != nil {
		return Manifest{}, errors.Wrap(err, "closing archive")
	}
	return manifest, nil
}

// Import restores the archive read from r. Only an unreadable archive fails as a whole; every entry is restored
// independently and its failure is recorded in the report.
func (c *Codec) Import(ctx context.Context, r io.ReaderAt, size int64) (RestoreReport, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return RestoreReport{}, errors.Wrap(ErrInvalidArchive, err.Error())
	}

	var (
		report  RestoreReport
		entries []entry
	)
	for _, f := range zr.File {
		name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		if f.FileInfo().IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(f.Name, "__MACOSX/") ||
			!strings.HasSuffix(name, legacykey.Ext) {
			report.Skipped++
			continue
		}
		data, err := readEntry(f)
		entries = append(entries, entry{name: name, data: data, err: err})
	}
	return c.restore(ctx, entries, report), nil
}

// ImportDir restores every document of a legacy data directory.
func (c *Codec) ImportDir(ctx context.Context, files dualstore.Files) (RestoreReport, error) {
	names, err := files.List()
	if err != nil {
		return RestoreReport{}, err
	}

	entries := make([]entry, len(names))
	var g errgroup.Group
	g.SetLimit(lookupLimit)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			data, err := files.ReadFile(name)
			entries[i] = entry{name: name, data: data, err: err}
			return nil // unreadable files fail their own entry
		})
	}
	_ = g.Wait()
	return c.restore(ctx, entries, RestoreReport{}), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, errEntryTooLarge
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if n > maxEntrySize {
		return nil, errEntryTooLarge
	}
	return buf.Bytes(), nil
}

// kindOrder restores parents before their children.
var kindOrder = map[legacykey.Kind]int{
	legacykey.KindRoster:        1,
	legacykey.KindStudy:         2,
	legacykey.KindAssignment:    3,
	legacykey.KindEvaluationSet: 4,
	legacykey.KindClassGroups:   5,
	legacykey.KindStudyGroups:   6,
}

func (c *Codec) restore(ctx context.Context, entries []entry, report RestoreReport) RestoreReport {
	for i := range entries {
		entries[i].parsed = legacykey.Parse(entries[i].name)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		oi, oj := kindOrder[entries[i].parsed.Kind], kindOrder[entries[j].parsed.Kind]
		if oi != oj {
			return oi < oj
		}
		return entries[i].name < entries[j].name
	})

	studies, err := c.knownStudies(ctx, entries)
	if err != nil {
		c.logger.Warn("listing known studies", err)
	}
	classes, err := c.knownClasses(ctx, entries)
	if err != nil {
		c.logger.Warn("listing known classes", err)
	}

	for _, e := range entries {
		kind, n, err := c.restoreEntry(ctx, e, studies, classes)
		if err != nil {
			c.logger.Warn("restoring archive entry", errors.Wrap(err, e.name))
			report.fail(e.name, err)
			continue
		}
		report.count(kind, n)
	}
	return report
}

// restoreEntry is the error boundary of one entry: a panic fails the entry, not the restore.
func (c *Codec) restoreEntry(ctx context.Context, e entry, studies, classes []string) (kind legacykey.Kind, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	if e.err != nil {
		return 0, 0, e.err
	}
	if !json.Valid(e.data) {
		return 0, 0, errors.New("invalid JSON")
	}
	key, err := resolveKey(e, studies, classes)
	if err != nil {
		return 0, 0, err
	}
	n, err = c.store.StoreCounted(ctx, key, e.data)
	return key.Kind, n, err
}

// resolveKey splits ambiguous names against the known studies first, then against the known classes.
func resolveKey(e entry, studies, classes []string) (legacykey.Key, error) {
	p := e.parsed
	if key, ok := p.Key(); ok {
		return key, nil
	}
	if !p.Ambiguous() {
		return legacykey.Key{}, errUnknownName
	}

	if p.Kind == legacykey.KindAssignment {
		// the record names its study and class
		if a, err := legacydoc.DecodeAssignment(e.data); err == nil && a.Study != "" && a.ClassName != "" {
			return legacykey.Assignment(a.Study, a.ClassName), nil
		}
	}
	if key, ok := legacykey.Resolve(p, studies, nil); ok {
		return key, nil
	}
	if keys := legacykey.ClassCandidates(p, classes); len(keys) > 0 {
		return keys[0], nil
	}
	return legacykey.Key{}, errNoStudy
}

// knownStudies collects the studies of the database and the ones the entries name.
func (c *Codec) knownStudies(ctx context.Context, entries []entry) ([]string, error) {
	studies, err := c.store.StudyNames(ctx)
	for _, e := range entries {
		switch e.parsed.Kind {
		case legacykey.KindStudy, legacykey.KindEvaluationSet:
			studies = append(studies, e.parsed.Remainder)
		case legacykey.KindAssignment:
			if e.err != nil {
				continue
			}
			if a, err := legacydoc.DecodeAssignment(e.data); err == nil && a.Study != "" {
				studies = append(studies, a.Study)
			}
		}
	}
	return studies, err
}

// knownClasses collects the classes of the database and the ones named by the roster, class group and
// assignment entries.
func (c *Codec) knownClasses(ctx context.Context, entries []entry) ([]string, error) {
	classes, err := c.store.ClassNames(ctx)
	for _, e := range entries {
		if e.err != nil {
			continue
		}
		switch e.parsed.Kind {
		case legacykey.KindClassGroups:
			classes = append(classes, e.parsed.Remainder)
		case legacykey.KindRoster:
			students, decodeErr := legacydoc.DecodeRoster(e.data)
			if decodeErr != nil {
				continue
			}
			for _, s := range students {
				classes = append(classes, s.ClassName)
			}
		case legacykey.KindAssignment:
			if a, decodeErr := legacydoc.DecodeAssignment(e.data); decodeErr == nil && a.ClassName != "" {
				classes = append(classes, a.ClassName)
			}
		}
	}
	return classes, err
}
