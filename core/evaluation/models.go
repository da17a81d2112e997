package evaluation

import (
	"bytes"
	"encoding/json"
	"time"
)

// SettingsSchoolNo is the reserved school number of the record holding study-level settings.
const SettingsSchoolNo = "AYARLAR"

var (
	emptyList   = json.RawMessage(`[]`)
	emptyObject = json.RawMessage(`{}`)
)

type (
	// Evaluation is one student's record for a study.
	// Answers is always a list, except for the settings record which keeps its document verbatim.
	Evaluation struct {
		StudyID     int             `json:"study_id"`
		Study       string          `json:"study"`
		SchoolNo    string          `json:"school_no"`
		ClassName   string          `json:"class_name"`
		Answers     json.RawMessage `json:"answers"`
		Scores      json.RawMessage `json:"scores"`
		EntryCount  int             `json:"entry_count"`
		Summary     json.RawMessage `json:"summary"`
		LastUpdated time.Time       `json:"last_updated"`
	}

	// Update writes the sub-fields it carries and keeps the stored value of every nil one.
	// An explicit empty structure (`[]`, `{}`) is a value and overwrites.
	Update struct {
		Study      string
		SchoolNo   string
		ClassName  *string
		Answers    json.RawMessage
		Scores     json.RawMessage
		EntryCount *int
		Summary    json.RawMessage
	}

	QueryFilter struct {
		Study     string
		ClassName string
		// WithSettings also returns the settings record.
		WithSettings bool
	}

	// ScoreEntry sets the points of one answer: scores[Question][Answer] = Points.
	ScoreEntry struct {
		Study     string
		SchoolNo  string
		ClassName string
		Question  int
		Answer    int
		Points    float64
	}
)

// IsSettings reports whether e is the study settings record.
func (e Evaluation) IsSettings() bool {
	return e.SchoolNo == SettingsSchoolNo
}

// IsEmpty reports whether the update carries no sub-field at all.
func (u Update) IsEmpty() bool {
	return u.ClassName == nil && u.Answers == nil && u.Scores == nil && u.EntryCount == nil && u.Summary == nil
}

// Apply returns e with the sub-fields carried by u.
func (u Update) Apply(e Evaluation) Evaluation {
	if u.ClassName != nil {
		e.ClassName = *u.ClassName
	}
	if u.Answers != nil {
		e.Answers = u.Answers
	}
	if u.Scores != nil {
		e.Scores = u.Scores
	}
	if u.EntryCount != nil {
		e.EntryCount = *u.EntryCount
	}
	if u.Summary != nil {
		e.Summary = u.Summary
	}
	return e
}

// NewEvaluation returns the defaults of a record that was never written.
func NewEvaluation(studyID int, studyName, schoolNo string) Evaluation {
	return Evaluation{
		StudyID:  studyID,
		Study:    studyName,
		SchoolNo: schoolNo,
		Answers:  emptyList,
		Scores:   emptyObject,
		Summary:  emptyObject,
	}
}

// NormalizeAnswers accepts the bare list and the `{"cevaplar": [...]}` wrapper and returns the list.
// Missing answers are an empty list; any other value becomes a one-element list.
func NormalizeAnswers(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyList
	}
	switch trimmed[0] {
	case '[':
		return trimmed
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err == nil {
			if list, ok := wrapper["cevaplar"]; ok {
				return NormalizeAnswers(list)
			}
		}
	}
	return append(append(json.RawMessage{'['}, trimmed...), ']')
}

// SumScores adds up every number found in scores.
func SumScores(scores json.RawMessage) float64 {
	var v interface{}
	if err := json.Unmarshal(scores, &v); err != nil {
		return 0
	}
	return sum(v)
}

func sum(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case []interface{}:
		var total float64
		for _, item := range val {
			total += sum(item)
		}
		return total
	case map[string]interface{}:
		var total float64
		for _, item := range val {
			total += sum(item)
		}
		return total
	default:
		return 0
	}
}
