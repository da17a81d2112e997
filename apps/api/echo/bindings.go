package echoapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// LegacyString accepts a JSON string or number: the front-end sends school numbers both ways.
type LegacyString string

func (s *LegacyString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = LegacyString(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Errorf("expected a string or a number, got %s", data)
	}
	*s = LegacyString(n.String())
	return nil
}

// LegacyNumber accepts a JSON number or a numeric string.
type LegacyNumber float64

func (n *LegacyNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return errors.Errorf("%q is not a number", str)
		}
		*n = LegacyNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = LegacyNumber(f)
	return nil
}

type (
	StudyRequest struct {
		Name    string          `json:"calismaIsmi" validate:"required,legacyname"`
		Content json.RawMessage `json:"sorular"`
	}

	// DocumentRequest names a study directly or through one of its legacy file names.
	DocumentRequest struct {
		Name string `json:"dosyaIsmi" validate:"required,legacyname"`
	}

	GroupSaveRequest struct {
		ClassName string          `json:"sinif" validate:"required,legacyname"`
		Study     string          `json:"calisma"`
		Groups    json.RawMessage `json:"gruplar" validate:"required"`
	}

	// SaveRequest is either an evaluation submission (dosyaAdi + veri) or a class groups save (sinif + gruplar).
	SaveRequest struct {
		FileName  string          `json:"dosyaAdi"`
		Data      json.RawMessage `json:"veri"`
		ClassName string          `json:"sinif"`
		Groups    json.RawMessage `json:"gruplar"`
	}

	ScoreRequest struct {
		FileName  string       `json:"dosyaAdi" validate:"required,legacyname"`
		SchoolNo  LegacyString `json:"ogrenciNo" validate:"required"`
		ClassName string       `json:"sinif"`
		Question  LegacyNumber `json:"soruIndex" validate:"min=0"`
		Answer    LegacyNumber `json:"cevapIndex" validate:"min=0"`
		Points    LegacyNumber `json:"puan"`
	}

	FinishRequest struct {
		FileName string       `json:"dosyaAdi" validate:"required,legacyname"`
		SchoolNo LegacyString `json:"ogrenciNo" validate:"required"`
	}

	ResetRequest struct {
		FileName  string `json:"dosyaAdi" validate:"required,legacyname"`
		ClassName string `json:"sinif" validate:"required,legacyname"`
	}

	AssignmentDeleteRequest struct {
		Study     string `json:"calisma" validate:"required,legacyname"`
		ClassName string `json:"sinif" validate:"required,legacyname"`
	}
)

// isPresent reports whether raw carries a value other than null.
func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
