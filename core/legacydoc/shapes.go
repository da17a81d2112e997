// Package legacydoc converts between the JSON documents of the legacy flat files and the normalized rows of the
// domain packages.
package legacydoc

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

// Roster dump fields
const (
	FieldSchoolNo    = "Okul Numaranız"
	FieldName        = "Adınız Soyadınız"
	FieldClass       = "Sınıfınız"
	FieldPhone       = "Telefon numaranız"
	FieldParentPhone = "Velinizin telefon numarası"
	FieldEmail       = "E-Posta Adresiniz"
	FieldDrive       = "Drive Klasörünüzün linki"
)

// Assignment record fields
const (
	FieldAssignmentClass  = "sinif"
	FieldAssignmentStudy  = "calisma"
	FieldAssignmentMethod = "yontem"
)

// Evaluation record fields
const (
	FieldStudentNo   = "ogrenciNo"
	FieldStudentName = "adSoyad"
	FieldClassName   = "sinif"
	FieldAnswers     = "cevaplar"
	FieldScores      = "puanlar"
	FieldEntryCount  = "girisSayisi"
	FieldSummary     = "degerlendirme"
)

var rosterFields = []string{FieldSchoolNo, FieldName, FieldClass, FieldPhone, FieldParentPhone, FieldEmail, FieldDrive}

// EvaluationRecord is one element of a www_<Study>.json document.
type EvaluationRecord struct {
	SchoolNo   string          `json:"ogrenciNo"`
	Name       string          `json:"adSoyad,omitempty"`
	ClassName  string          `json:"sinif"`
	Answers    json.RawMessage `json:"cevaplar"`
	Scores     json.RawMessage `json:"puanlar"`
	EntryCount int             `json:"girisSayisi"`
	Summary    json.RawMessage `json:"degerlendirme"`
}

// scalarString reads a JSON string or number as a string. Legacy files store school numbers both ways.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return core.CleanString(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func nullString(raw json.RawMessage) null.String {
	if raw == nil {
		return null.String{}
	}
	s, ok := scalarString(raw)
	return null.NewString(s, ok)
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // only called with strings and raw JSON
	}
	return b
}

// EncodeRoster groups students by class into the veritabani.json shape.
func EncodeRoster(students []student.Student) (json.RawMessage, error) {
	byClass := make(map[string][]map[string]json.RawMessage)
	for _, s := range students {
		rec := make(map[string]json.RawMessage, len(s.Extra)+len(rosterFields))
		for k, v := range s.Extra {
			rec[k] = v
		}
		rec[FieldSchoolNo] = mustMarshal(s.SchoolNo)
		rec[FieldName] = mustMarshal(s.Name)
		rec[FieldClass] = mustMarshal(s.ClassName)
		for field, val := range map[string]null.String{
			FieldPhone:       s.Phone,
			FieldParentPhone: s.ParentPhone,
			FieldEmail:       s.Email,
			FieldDrive:       s.DriveLink,
		} {
			if val.Valid {
				rec[field] = mustMarshal(val.String)
			}
		}
		byClass[s.ClassName] = append(byClass[s.ClassName], rec)
	}
	return json.Marshal(byClass)
}

// DecodeRoster reads a veritabani.json document. Records without a class take the label they are listed under.
func DecodeRoster(doc json.RawMessage) ([]student.Student, error) {
	var byClass map[string]json.RawMessage
	if err := json.Unmarshal(doc, &byClass); err != nil {
		return nil, errors.Wrap(err, "decoding roster")
	}

	labels := make([]string, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var students []student.Student
	for _, label := range labels {
		var records []map[string]json.RawMessage
		if err := json.Unmarshal(byClass[label], &records); err != nil {
			continue // legacy dumps may hold non-list metadata next to the classes
		}
		for i, rec := range records {
			no, ok := scalarString(rec[FieldSchoolNo])
			if !ok || no == "" {
				return nil, errors.Errorf("roster %q record %d: missing %q", label, i, FieldSchoolNo)
			}
			name, _ := scalarString(rec[FieldName])
			className, ok := scalarString(rec[FieldClass])
			if !ok {
				className = label
			}

			s := student.Student{
				SchoolNo:    no,
				Name:        name,
				ClassName:   className,
				Phone:       nullString(rec[FieldPhone]),
				ParentPhone: nullString(rec[FieldParentPhone]),
				Email:       nullString(rec[FieldEmail]),
				DriveLink:   nullString(rec[FieldDrive]),
				Extra:       make(map[string]json.RawMessage),
			}
			for k, v := range rec {
				if !isRosterField(k) {
					s.Extra[k] = v
				}
			}
			students = append(students, s)
		}
	}
	return students, nil
}

func isRosterField(name string) bool {
	for _, f := range rosterFields {
		if f == name {
			return true
		}
	}
	return false
}

// EncodeAssignment spreads the settings next to the class, study and method.
func EncodeAssignment(a study.Assignment) (json.RawMessage, error) {
	rec := make(map[string]json.RawMessage, len(a.Settings)+3)
	for k, v := range a.Settings {
		rec[k] = v
	}
	rec[FieldAssignmentClass] = mustMarshal(a.ClassName)
	rec[FieldAssignmentStudy] = mustMarshal(a.Study)
	rec[FieldAssignmentMethod] = mustMarshal(a.Method)
	return json.Marshal(rec)
}

// DecodeAssignment reads a qqq<Class><Study>.json document. Study and class may be empty when the record
// does not carry them.
func DecodeAssignment(doc json.RawMessage) (study.Assignment, error) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(doc, &rec); err != nil {
		return study.Assignment{}, errors.Wrap(err, "decoding assignment")
	}
	a := study.Assignment{Settings: make(map[string]json.RawMessage, len(rec))}
	a.ClassName, _ = scalarString(rec[FieldAssignmentClass])
	a.Study, _ = scalarString(rec[FieldAssignmentStudy])
	a.Method, _ = scalarString(rec[FieldAssignmentMethod])
	for k, v := range rec {
		switch k {
		case FieldAssignmentClass, FieldAssignmentStudy, FieldAssignmentMethod:
		default:
			a.Settings[k] = v
		}
	}
	return a, nil
}

// EncodeEvaluations builds a www_<Study>.json document. names maps school numbers to display names.
func EncodeEvaluations(evals []evaluation.Evaluation, names map[string]string) (json.RawMessage, error) {
	records := make([]json.RawMessage, 0, len(evals))
	for _, e := range evals {
		if e.IsSettings() {
			records = append(records, settingsRecord(e))
			continue
		}
		rec := EvaluationRecord{
			SchoolNo:   e.SchoolNo,
			ClassName:  e.ClassName,
			Answers:    evaluation.NormalizeAnswers(e.Answers),
			Scores:     orEmptyObject(e.Scores),
			EntryCount: e.EntryCount,
			Summary:    orEmptyObject(e.Summary),
		}
		if name := names[e.SchoolNo]; name != student.PlaceholderName {
			rec.Name = name
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrap(err, "encoding evaluation "+e.SchoolNo)
		}
		records = append(records, raw)
	}
	return json.Marshal(records)
}

func settingsRecord(e evaluation.Evaluation) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Answers, &obj); err != nil || obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	obj[FieldStudentNo] = mustMarshal(evaluation.SettingsSchoolNo)
	return mustMarshal(obj)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

// DecodeEvaluations reads a www_<Study>.json document into partial updates: a field missing from a record
// leaves the stored value alone. The settings record is kept whole as its answers.
func DecodeEvaluations(studyName string, doc json.RawMessage) ([]evaluation.Update, map[string]string, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, nil, errors.Wrap(err, "decoding evaluations")
	}

	updates := make([]evaluation.Update, 0, len(records))
	names := make(map[string]string)
	for i, rec := range records {
		no, ok := scalarString(rec[FieldStudentNo])
		if !ok || no == "" {
			return nil, nil, errors.Errorf("evaluation record %d: missing %q", i, FieldStudentNo)
		}
		u := evaluation.Update{Study: studyName, SchoolNo: no}

		if no == evaluation.SettingsSchoolNo {
			raw, err := json.Marshal(rec)
			if err != nil {
				return nil, nil, errors.Wrap(err, "encoding settings record")
			}
			u.Answers = raw
			updates = append(updates, u)
			continue
		}

		if name, ok := scalarString(rec[FieldStudentName]); ok && name != "" {
			names[no] = name
		}
		if raw, ok := present(rec, FieldClassName); ok {
			className, _ := scalarString(raw)
			u.ClassName = &className
		}
		if raw, ok := present(rec, FieldAnswers); ok {
			u.Answers = raw
		}
		if raw, ok := present(rec, FieldScores); ok {
			u.Scores = raw
		}
		if raw, ok := present(rec, FieldEntryCount); ok {
			count, err := strconv.Atoi(string(raw))
			if err != nil {
				return nil, nil, errors.Errorf("evaluation record %d: %q must be an integer", i, FieldEntryCount)
			}
			u.EntryCount = &count
		}
		if raw, ok := present(rec, FieldSummary); ok {
			u.Summary = raw
		}
		updates = append(updates, u)
	}
	return updates, names, nil
}

// present returns the field when it is set to something else than null.
func present(rec map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	raw, ok := rec[field]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}
