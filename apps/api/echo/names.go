package echoapi

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/legacykey"
)

// catalogEntry is one row of the management listing.
type catalogEntry struct {
	Name     string `json:"dosya_adi"`
	Archived bool   `json:"arsivde"`
}

// legacyName adds the extension the front-end sometimes leaves out.
func legacyName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, legacykey.Ext) {
		return name
	}
	return name + legacykey.Ext
}

// studyName returns the study named directly by name, or through its study or evaluation file name.
func studyName(name string) string {
	p := legacykey.Parse(legacyName(name))
	switch p.Kind {
	case legacykey.KindStudy, legacykey.KindEvaluationSet:
		return legacykey.SanitizeName(p.Remainder)
	default:
		return legacykey.SanitizeName(strings.TrimSuffix(strings.TrimSpace(name), legacykey.Ext))
	}
}

// names resolves legacy file names against the database and the data directory.
type names struct {
	docs  *legacydoc.Documents
	store *dualstore.Store
}

// knownStudies lists the studies of the database and the ones named by study or evaluation files.
func (n names) knownStudies(ctx context.Context) ([]string, error) {
	studies, err := n.docs.StudyNames(ctx)
	if err != nil {
		return nil, err
	}
	files, err := n.store.FileNames()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if p := legacykey.Parse(f); p.Kind == legacykey.KindStudy || p.Kind == legacykey.KindEvaluationSet {
			studies = append(studies, p.Remainder)
		}
	}
	return studies, nil
}

// resolve returns the document a legacy name refers to. Ambiguous names are split against the known studies,
// the longest study holding a document wins.
func (n names) resolve(ctx context.Context, name string) (dualstore.Document, error) {
	p := legacykey.Parse(legacyName(name))
	if key, ok := p.Key(); ok {
		return n.store.Resolve(ctx, key)
	}
	if !p.Ambiguous() {
		return dualstore.Document{}, dualstore.ErrNotFound
	}

	studies, err := n.knownStudies(ctx)
	if err != nil {
		return dualstore.Document{}, errors.Wrap(err, "listing studies")
	}
	doc, err := n.first(ctx, legacykey.Candidates(p, studies))
	if !dualstore.IsNotFound(err) {
		return doc, err
	}

	// a group roster may outlive its study: split on the known classes instead
	classes, err := n.docs.ClassNames(ctx)
	if err != nil {
		return dualstore.Document{}, errors.Wrap(err, "listing classes")
	}
	return n.first(ctx, legacykey.ClassCandidates(p, classes))
}

// first returns the document of the first key that resolves.
func (n names) first(ctx context.Context, keys []legacykey.Key) (dualstore.Document, error) {
	for _, key := range keys {
		doc, err := n.store.Resolve(ctx, key)
		if dualstore.IsNotFound(err) {
			continue
		}
		return doc, err
	}
	return dualstore.Document{}, dualstore.ErrNotFound
}

// migrateStudy moves a study and its evaluations into the database when they only exist on disk.
func (n names) migrateStudy(ctx context.Context, name string) error {
	if err := n.store.Migrate(ctx, legacykey.Study(name)); err != nil {
		return err
	}
	return n.store.Migrate(ctx, legacykey.EvaluationSet(name))
}

// catalog lists the documents of both backends. Files that were not migrated yet follow the archived flag of
// their study.
func (n names) catalog(ctx context.Context) ([]catalogEntry, error) {
	entries, err := n.docs.Entries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing documents")
	}
	files, err := n.store.FileNames()
	if err != nil {
		return nil, errors.Wrap(err, "listing data directory")
	}

	seen := make(map[string]bool, len(entries))
	archived := make(map[string]bool)
	catalog := make([]catalogEntry, 0, len(entries)+len(files))
	for _, e := range entries {
		seen[e.Name] = true
		if e.Key.Kind == legacykey.KindStudy {
			archived[e.Key.Study] = e.Archived
		}
		catalog = append(catalog, catalogEntry{Name: e.Name, Archived: e.Archived})
	}
	for _, f := range files {
		if seen[f] {
			continue
		}
		p := legacykey.Parse(f)
		if p.Kind == legacykey.KindUnknown {
			continue
		}
		var arch bool
		if key, ok := p.Key(); ok {
			arch = archived[key.Study]
		}
		catalog = append(catalog, catalogEntry{Name: f, Archived: arch})
	}

	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Name < catalog[j].Name })
	return catalog, nil
}
