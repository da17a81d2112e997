package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacykey"
)

// GeneralStudy is the study name of class-wide rosters.
const GeneralStudy = "GENEL"

var (
	// errors
	ErrNotFound     = errors.New("group roster not found")
	errInvalidShape = errors.New("groups must be a list of lists")
)

// member fields that may carry a school number when a group lists objects
var memberNoFields = []string{"ogrenciNo", "Okul Numaranız", "okulNo"}

type (
	// Roster splits a class into ordered groups of students. It is replaced as a whole on save.
	Roster struct {
		ClassName string          `json:"class_name"`
		Study     string          `json:"study"`
		Groups    json.RawMessage `json:"groups"`
	}

	QueryFilter struct {
		Study     string
		ClassName string
	}

	Repository interface {
		// UpsertRoster replaces the groups of (class, study); unchanged rosters are left untouched.
		UpsertRoster(ctx context.Context, r Roster, exec ...core.DBExecutor) error
		GetRoster(ctx context.Context, className, studyName string, exec ...core.DBExecutor) (Roster, error)
		QueryRosters(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Roster, error)
	}

	// DocumentStore is the dual-backend store rosters are read from and written to.
	DocumentStore interface {
		Resolve(ctx context.Context, key legacykey.Key) (dualstore.Document, error)
		Write(ctx context.Context, key legacykey.Key, doc json.RawMessage) error
	}

	Service struct {
		docs DocumentStore
	}
)

// IsGeneric reports whether the roster is class-wide.
func (r Roster) IsGeneric() bool {
	return r.Study == "" || r.Study == GeneralStudy
}

// Key returns the legacy key of the roster.
func (r Roster) Key() legacykey.Key {
	if r.IsGeneric() {
		return legacykey.ClassGroups(r.ClassName)
	}
	return legacykey.StudyGroups(r.Study, r.ClassName)
}

// FromKey builds the roster addressed by a group key, with the class spelled the way its file name spells it.
func FromKey(key legacykey.Key, groups json.RawMessage) Roster {
	if key.Kind == legacykey.KindStudyGroups {
		return Roster{
			ClassName: legacykey.StripSpaces(legacykey.SanitizeName(key.Class)),
			Study:     legacykey.SanitizeName(key.Study),
			Groups:    groups,
		}
	}
	return Roster{ClassName: legacykey.SanitizeClass(key.Class), Study: GeneralStudy, Groups: groups}
}

// RosterKey returns the key of a study roster, or of the class-wide one when studyName is empty or GENEL.
func RosterKey(studyName, className string) legacykey.Key {
	studyName = legacykey.SanitizeName(studyName)
	if studyName == "" || studyName == GeneralStudy {
		return legacykey.ClassGroups(className)
	}
	return legacykey.StudyGroups(studyName, className)
}

// MemberSchoolNos validates the shape of groups and returns the school numbers of their members.
// Members are either school numbers or objects holding one.
func MemberSchoolNos(groups json.RawMessage) ([]string, error) {
	var list [][]json.RawMessage
	if err := json.Unmarshal(groups, &list); err != nil {
		return nil, core.NewValidationError(errInvalidShape, core.FieldError{Field: "groups", Error: errInvalidShape.Error()})
	}

	var nos []string
	for _, g := range list {
		for _, m := range g {
			if no := memberSchoolNo(m); no != "" {
				nos = append(nos, no)
			}
		}
	}
	return nos, nil
}

func memberSchoolNo(m json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(m, &v); err != nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return core.CleanString(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]interface{}:
		for _, f := range memberNoFields {
			if no, ok := val[f]; ok && no != nil {
				return core.CleanString(fmt.Sprint(no))
			}
		}
	}
	return ""
}

func NewService(docs DocumentStore) *Service {
	return &Service{docs: docs}
}

// Get resolves a roster from the database, or from its legacy file.
func (svc *Service) Get(ctx context.Context, studyName, className string) (dualstore.Document, error) {
	return svc.docs.Resolve(ctx, RosterKey(studyName, className))
}

// Save replaces a roster in the database and its legacy file.
func (svc *Service) Save(ctx context.Context, studyName, className string, groups json.RawMessage) error {
	if _, err := MemberSchoolNos(groups); err != nil {
		return err
	}
	return svc.docs.Write(ctx, RosterKey(studyName, className), groups)
}
