package student

import (
	"encoding/json"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/calisma/core"
)

// PlaceholderName is given to students created implicitly by an evaluation or a group roster.
const PlaceholderName = "Bilinmeyen Öğrenci"

// Student is a roster entry. Contact fields are nullable so that a missing field and an empty one survive a
// roster export/import unchanged.
type Student struct {
	SchoolNo    string                     `json:"school_no" db:"school_no"`
	Name        string                     `json:"name" db:"name"`
	ClassName   string                     `json:"class_name" db:"class_name"`
	Phone       null.String                `json:"phone" db:"phone"`
	ParentPhone null.String                `json:"parent_phone" db:"parent_phone"`
	Email       null.String                `json:"email" db:"email"`
	DriveLink   null.String                `json:"drive_link" db:"drive_link"`
	Extra       map[string]json.RawMessage `json:"extra" db:"-"`
}

type QueryFilter struct {
	ClassName string
	SchoolNos []string
}

// Equal compares two students field by field, extra attributes included.
func (s Student) Equal(o Student) bool {
	if s.SchoolNo != o.SchoolNo || s.Name != o.Name || s.ClassName != o.ClassName ||
		s.Phone != o.Phone || s.ParentPhone != o.ParentPhone || s.Email != o.Email || s.DriveLink != o.DriveLink {
		return false
	}
	if len(s.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range s.Extra {
		ov, ok := o.Extra[k]
		if !ok || !core.JSONEqual(v, ov) {
			return false
		}
	}
	return true
}
