// Package legacykey maps composite keys (study, class) to the file names historically used to store each
// document as a JSON file, and back.
//
// Two shapes concatenate the study and the class without a delimiter (qqq<Class><Study>.json and
// ggg<Study><Class>.json). Their remainder cannot be split from the name alone: callers resolve it against
// the studies they already know with Candidates or Resolve.
package legacykey

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/trezcool/calisma/core"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindStudy
	KindAssignment
	KindEvaluationSet
	KindClassGroups
	KindStudyGroups
	KindRoster
)

const (
	Ext        = ".json"
	RosterName = "veritabani" + Ext

	studyPrefix       = "qwx"
	assignmentPrefix  = "qqq"
	evaluationPrefix  = "www_"
	studyGroupsPrefix = "ggg"
	classGroupsSuffix = "Grupları"
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindStudy:         "study",
	KindAssignment:    "assignment",
	KindEvaluationSet: "evaluation set",
	KindClassGroups:   "class groups",
	KindStudyGroups:   "study groups",
	KindRoster:        "roster",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// IsGroups reports whether documents of this kind are group rosters.
func (k Kind) IsGroups() bool {
	return k == KindClassGroups || k == KindStudyGroups
}

// Key addresses one document. Study and Class are set according to the Kind.
type Key struct {
	Kind  Kind
	Study string
	Class string
}

func Study(study string) Key { return Key{Kind: KindStudy, Study: study} }
func Assignment(study, class string) Key { return Key{Kind: KindAssignment, Study: study, Class: class} }
func EvaluationSet(study string) Key { return Key{Kind: KindEvaluationSet, Study: study} }
func ClassGroups(class string) Key { return Key{Kind: KindClassGroups, Class: class} }
func StudyGroups(study, class string) Key {
	return Key{Kind: KindStudyGroups, Study: study, Class: class}
}
func Roster() Key { return Key{Kind: KindRoster} }

func (k Key) String() string {
	switch k.Kind {
	case KindStudy, KindEvaluationSet:
		return fmt.Sprintf("%s(%s)", k.Kind, k.Study)
	case KindClassGroups:
		return fmt.Sprintf("%s(%s)", k.Kind, k.Class)
	case KindAssignment, KindStudyGroups:
		return fmt.Sprintf("%s(%s, %s)", k.Kind, k.Study, k.Class)
	default:
		return k.Kind.String()
	}
}

// Render returns the legacy file name of k. Names go through SanitizeName first and whitespace is removed
// from class names.
func Render(k Key) (string, error) {
	study := SanitizeName(k.Study)
	class := StripSpaces(SanitizeName(k.Class))

	needStudy := func() error {
		if study == "" {
			return core.NewMissingFieldError("study")
		}
		return nil
	}
	needClass := func() error {
		if class == "" {
			return core.NewMissingFieldError("class")
		}
		return nil
	}

	switch k.Kind {
	case KindStudy:
		if err := needStudy(); err != nil {
			return "", err
		}
		return studyPrefix + study + Ext, nil
	case KindAssignment:
		if err := needStudy(); err != nil {
			return "", err
		}
		if err := needClass(); err != nil {
			return "", err
		}
		return assignmentPrefix + class + study + Ext, nil
	case KindEvaluationSet:
		if err := needStudy(); err != nil {
			return "", err
		}
		return evaluationPrefix + study + Ext, nil
	case KindClassGroups:
		class = SanitizeClass(k.Class)
		if err := needClass(); err != nil {
			return "", err
		}
		return class + classGroupsSuffix + Ext, nil
	case KindStudyGroups:
		if err := needStudy(); err != nil {
			return "", err
		}
		if err := needClass(); err != nil {
			return "", err
		}
		return studyGroupsPrefix + study + class + Ext, nil
	case KindRoster:
		return RosterName, nil
	default:
		return "", core.NewValidationError(fmt.Errorf("cannot render a key of kind %q", k.Kind))
	}
}

// Parsed is the classification of a legacy file name.
type Parsed struct {
	Name      string
	Kind      Kind
	Remainder string
}

// Parse classifies name. Prefixed shapes win over the `Grupları` suffix; unrecognized names get KindUnknown.
func Parse(name string) Parsed {
	p := Parsed{Name: name}
	if name == RosterName {
		p.Kind = KindRoster
		return p
	}
	base := strings.TrimSuffix(name, Ext)
	if base == name || base == "" {
		return p
	}

	prefixes := []struct {
		prefix string
		kind   Kind
	}{
		{studyPrefix, KindStudy},
		{assignmentPrefix, KindAssignment},
		{evaluationPrefix, KindEvaluationSet},
		{studyGroupsPrefix, KindStudyGroups},
	}
	for _, pre := range prefixes {
		if strings.HasPrefix(base, pre.prefix) {
			if rest := strings.TrimPrefix(base, pre.prefix); rest != "" {
				p.Kind, p.Remainder = pre.kind, rest
			}
			return p
		}
	}
	if class := strings.TrimSuffix(base, classGroupsSuffix); class != base && class != "" {
		p.Kind, p.Remainder = KindClassGroups, class
	}
	return p
}

// Ambiguous reports whether the remainder concatenates a study and a class.
func (p Parsed) Ambiguous() bool {
	return p.Kind == KindAssignment || p.Kind == KindStudyGroups
}

// Key returns the key of an unambiguous name.
func (p Parsed) Key() (Key, bool) {
	switch p.Kind {
	case KindStudy:
		return Study(p.Remainder), true
	case KindEvaluationSet:
		return EvaluationSet(p.Remainder), true
	case KindClassGroups:
		return ClassGroups(p.Remainder), true
	case KindRoster:
		return Roster(), true
	default:
		return Key{}, false
	}
}

// Candidates lists every (study, class) split of an ambiguous name whose study is one of studies and whose class
// is not empty. Longer study names come first.
func Candidates(p Parsed, studies []string) []Key {
	if !p.Ambiguous() {
		return nil
	}

	var keys []Key
	for _, s := range longestFirst(studies, SanitizeName) {
		switch p.Kind {
		case KindAssignment:
			if class := strings.TrimSuffix(p.Remainder, s); class != p.Remainder && class != "" {
				keys = append(keys, Assignment(s, class))
			}
		case KindStudyGroups:
			if class := strings.TrimPrefix(p.Remainder, s); class != p.Remainder && class != "" {
				keys = append(keys, StudyGroups(s, class))
			}
		}
	}
	return keys
}

// ClassCandidates lists every (study, class) split of an ambiguous name whose class is one of classes and whose
// study is not empty. Classes are compared the way names render them, without spaces. Longer classes come first.
func ClassCandidates(p Parsed, classes []string) []Key {
	if !p.Ambiguous() {
		return nil
	}

	var keys []Key
	for _, c := range longestFirst(classes, func(c string) string { return StripSpaces(SanitizeName(c)) }) {
		switch p.Kind {
		case KindAssignment:
			if s := strings.TrimPrefix(p.Remainder, c); s != p.Remainder && s != "" {
				keys = append(keys, Assignment(s, c))
			}
		case KindStudyGroups:
			if s := strings.TrimSuffix(p.Remainder, c); s != p.Remainder && s != "" {
				keys = append(keys, StudyGroups(s, c))
			}
		}
	}
	return keys
}

// longestFirst cleans and deduplicates names, longest first.
func longestFirst(names []string, clean func(string) string) []string {
	seen := make(map[string]bool, len(names))
	known := make([]string, 0, len(names))
	for _, n := range names {
		n = clean(n)
		if n != "" && !seen[n] {
			seen[n] = true
			known = append(known, n)
		}
	}
	sort.Slice(known, func(i, j int) bool {
		if len(known[i]) != len(known[j]) {
			return len(known[i]) > len(known[j])
		}
		return known[i] < known[j]
	})
	return known
}

// Resolve returns the first candidate accepted by accept (the first candidate when accept is nil).
func Resolve(p Parsed, studies []string, accept func(Key) bool) (Key, bool) {
	for _, k := range Candidates(p, studies) {
		if accept == nil || accept(k) {
			return k, true
		}
	}
	return Key{}, false
}

// StripSpaces removes every whitespace character from s.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
