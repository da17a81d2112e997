package legacydoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/student"
)

func TestDecodeRoster(t *testing.T) {
	students, err := DecodeRoster(json.RawMessage(`{
		"9A": [
			{"Okul Numaranız": 100, "Adınız Soyadınız": "Ali", "Telefon numaranız": "555", "Kulüp": "satranç"}
		],
		"9B": [
			{"Okul Numaranız": "200", "Adınız Soyadınız": "Can", "Sınıfınız": "9 B"}
		],
		"guncelleme": "2024-01-01"
	}`))
	require.NoError(t, err)
	require.Len(t, students, 2)

	assert.Equal(t, student.Student{
		SchoolNo:  "100",
		Name:      "Ali",
		ClassName: "9A",
		Phone:     null.StringFrom("555"),
		Extra:     map[string]json.RawMessage{"Kulüp": json.RawMessage(`"satranç"`)},
	}, students[0])
	assert.Equal(t, "9 B", students[1].ClassName, "record class wins over the label")

	_, err = DecodeRoster(json.RawMessage(`{"9A":[{"Adınız Soyadınız":"Ali"}]}`))
	assert.Error(t, err, "record without school number")
}

func TestEncodeRoster_roundTrip(t *testing.T) {
	in := []student.Student{
		{SchoolNo: "100", Name: "Ali", ClassName: "9A", Email: null.StringFrom(""), Extra: map[string]json.RawMessage{}},
		{SchoolNo: "101", Name: "Ayşe", ClassName: "9A", DriveLink: null.StringFrom("https://drive"), Extra: map[string]json.RawMessage{"not": json.RawMessage(`1`)}},
	}
	doc, err := EncodeRoster(in)
	require.NoError(t, err)
	out, err := DecodeRoster(doc)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.True(t, in[i].Equal(out[i]), "student %s: got %+v", in[i].SchoolNo, out[i])
	}
}

func TestDecodeEvaluations(t *testing.T) {
	updates, names, err := DecodeEvaluations("Fen1", json.RawMessage(`[
		{"ogrenciNo": 100, "adSoyad": "Ali", "sinif": "9A", "puanlar": {"0": [5]}, "cevaplar": null},
		{"ogrenciNo": "AYARLAR", "sure": 40}
	]`))
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, map[string]string{"100": "Ali"}, names)

	u := updates[0]
	assert.Equal(t, "100", u.SchoolNo)
	assert.Equal(t, "Fen1", u.Study)
	require.NotNil(t, u.ClassName)
	assert.Equal(t, "9A", *u.ClassName)
	assert.Nil(t, u.Answers, "null answers are absent")
	assert.Nil(t, u.EntryCount)
	assert.Nil(t, u.Summary)
	assert.JSONEq(t, `{"0":[5]}`, string(u.Scores))

	settings := updates[1]
	assert.Equal(t, evaluation.SettingsSchoolNo, settings.SchoolNo)
	assert.JSONEq(t, `{"ogrenciNo":"AYARLAR","sure":40}`, string(settings.Answers))

	_, _, err = DecodeEvaluations("Fen1", json.RawMessage(`[{"sinif":"9A"}]`))
	assert.Error(t, err, "record without school number")
	_, _, err = DecodeEvaluations("Fen1", json.RawMessage(`[{"ogrenciNo":"1","girisSayisi":"x"}]`))
	assert.Error(t, err, "non-integer entry count")
}
