package study

import (
	"encoding/json"
	"time"
)

// AssignmentIDField is the settings key holding the legacy assignment id.
const AssignmentIDField = "id"

type (
	// Study is a named question set. Content is kept verbatim.
	Study struct {
		ID        int             `json:"id"`
		Name      string          `json:"name"`
		Content   json.RawMessage `json:"content"`
		Archived  bool            `json:"archived"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	// Assignment binds a study to a class. Settings holds every legacy field besides the study, the class and the
	// method (visibility flags, time window, scoring flags and the legacy id).
	Assignment struct {
		ID        int                        `json:"id"`
		StudyID   int                        `json:"study_id"`
		Study     string                     `json:"study"`
		ClassName string                     `json:"class_name"`
		Method    string                     `json:"method"`
		Settings  map[string]json.RawMessage `json:"settings"`
	}

	QueryFilter struct {
		Archived *bool
		Names    []string
	}

	AssignmentFilter struct {
		Study     string
		ClassName string
	}
)
