package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/calisma/core/study"
	"github.com/trezcool/calisma/tests"
)

func Test_documentApi_get(t *testing.T) {
	server, env := setup(t)
	ctx := context.Background()

	testutil.CreateStudy(t, env.Studies, "Fen1", `[{"soru":"1+1"}]`)
	_, err := env.Studies.SaveAssignment(ctx, study.Assignment{
		Study: "Fen1", ClassName: "9A", Method: "bireysel",
		Settings: map[string]json.RawMessage{"id": json.RawMessage(`"a1"`)},
	})
	require.NoError(t, err)
	env.WriteFile(t, "qwxFen2.json", `[{"soru":"2+2"}]`)
	env.WriteFile(t, "qqq9BFen2.json", `{"id":"b1","sinif":"9B","calisma":"Fen2","yontem":"grup"}`)

	runTests(t, server, []httpTest{
		{
			name: "study from database", path: "/calismaGetir?isim=qwxFen1.json",
			wantCode: http.StatusOK, wantData: []byte(`[{"soru":"1+1"}]`),
		},
		{
			name: "extension is optional", path: "/calismaGetir?isim=qwxFen1",
			wantCode: http.StatusOK, wantData: []byte(`[{"soru":"1+1"}]`),
		},
		{
			name: "study from flat file", path: "/calismaGetir?isim=qwxFen2.json",
			wantCode: http.StatusOK, wantData: []byte(`[{"soru":"2+2"}]`),
		},
		{
			name: "assignment split on a known study", path: "/calismaGetir?isim=qqq9AFen1.json",
			wantCode: http.StatusOK, wantData: []byte(`{"id":"a1","sinif":"9A","calisma":"Fen1","yontem":"bireysel"}`),
		},
		{
			name: "assignment split on a study known from its file", path: "/calismaGetir?isim=qqq9BFen2.json",
			wantCode: http.StatusOK, wantData: []byte(`{"id":"b1","sinif":"9B","calisma":"Fen2","yontem":"grup"}`),
		},
		{
			name: "missing document", path: "/calismaGetir?isim=qwxYok.json",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "unknown name", path: "/calismaGetir?isim=rastgele.json",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "no name", path: "/calismaGetir",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
	})
}

func Test_documentApi_groups(t *testing.T) {
	server, env := setup(t)
	env.WriteFile(t, "9AGrupları.json", `[["100","101"],["102"]]`)

	runTests(t, server, []httpTest{
		{
			name: "class groups from flat file", path: "/grupListesiGetir?sinif=9A",
			wantCode: http.StatusOK, wantData: []byte(`[["100","101"],["102"]]`),
		},
		{
			name: "missing study groups", path: "/grupListesiGetir?sinif=9A&calisma=Kimya",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "save study groups", method: http.MethodPost, path: "/grupKaydet",
			body:     []byte(`{"sinif":"9A","calisma":"Kimya","gruplar":[["100"],["101","102"]]}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "study groups from database", path: "/grupListesiGetir?sinif=9A&calisma=Kimya",
			wantCode: http.StatusOK, wantData: []byte(`[["100"],["101","102"]]`),
		},
		{
			name: "GENEL is the class roster", path: "/grupListesiGetir?sinif=9A&calisma=GENEL",
			wantCode: http.StatusOK, wantData: []byte(`[["100","101"],["102"]]`),
		},
		{
			name: "missing class", path: "/grupListesiGetir",
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status":"eksik","alanlar":{"class":"this field is required"}}`),
		},
		{
			name: "save without class", method: http.MethodPost, path: "/grupKaydet",
			body:     []byte(`{"gruplar":[["100"]]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status":"eksik","alanlar":{"sinif":"this field is required"}}`),
		},
		{
			name: "save groups of another shape", method: http.MethodPost, path: "/grupKaydet",
			body:     []byte(`{"sinif":"9A","gruplar":{"a":1}}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status":"eksik","alanlar":{"groups":"groups must be a list of lists"}}`),
		},
	})

	// study groups are mirrored to their flat file
	data, err := afero.ReadFile(env.FS, "/gggKimya9A.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[["100"],["101","102"]]`, string(data))
}

func Test_documentApi_groupsOfUnknownStudy(t *testing.T) {
	server, env := setup(t)
	testutil.CreateStudent(t, env.Students, "201", "Can", "9B")
	env.WriteFile(t, "gggFizik9B.json", `[["201"]]`)

	runTests(t, server, []httpTest{
		{
			name: "split on a known class", path: "/calismaGetir?isim=gggFizik9B.json",
			wantCode: http.StatusOK, wantData: []byte(`[["201"]]`),
		},
		{
			name: "no known class", path: "/calismaGetir?isim=gggFizik9C.json",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
	})
}

func Test_documentApi_save(t *testing.T) {
	server, env := setup(t)
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	runTests(t, server, []httpTest{
		{
			name: "submit answers", method: http.MethodPost, path: "/kaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1","veri":{"ogrenciNo":101,"sinif":"9A","cevaplar":["a","b"],"girisSayisi":1}}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "scores only", method: http.MethodPost, path: "/kaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","veri":[{"ogrenciNo":"101","puanlar":{"0":[5]}}]}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "omitted fields are kept", path: "/calismaGetir?isim=www_Fen1",
			wantCode: http.StatusOK,
			wantData: []byte(`[{"ogrenciNo":"101","sinif":"9A","cevaplar":["a","b"],"puanlar":{"0":[5]},"girisSayisi":1,"degerlendirme":{}}]`),
		},
		{
			name: "class groups", method: http.MethodPost, path: "/kaydet",
			body:     []byte(`{"sinif":"9B","gruplar":[["201"]]}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "class groups saved", path: "/grupListesiGetir?sinif=9B",
			wantCode: http.StatusOK, wantData: []byte(`[["201"]]`),
		},
		{
			name: "not an evaluation file", method: http.MethodPost, path: "/kaydet",
			body:     []byte(`{"dosyaAdi":"qwxFen1","veri":[]}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"dosyaAdi":"not an evaluation file name"}}`),
		},
		{
			name: "nothing to save", method: http.MethodPost, path: "/kaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","mesaj":"dosyaAdi and veri, or sinif and gruplar, are required"}`),
		},
	})
}
