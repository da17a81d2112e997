package tests

import (
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_studyApi_save(t *testing.T) {
	server, _ := setup(t)

	runTests(t, server, []httpTest{
		{
			name: "save", method: http.MethodPost, path: "/calismaKaydet",
			body:     []byte(`{"calismaIsmi":"Fen1","sorular":[{"soru":"1+1"}]}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "overwrite", method: http.MethodPost, path: "/calismaKaydet",
			body:     []byte(`{"calismaIsmi":"Fen1","sorular":[{"soru":"2+2"}]}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "saved content", path: "/calismaGetir?isim=qwxFen1.json",
			wantCode: http.StatusOK, wantData: []byte(`[{"soru":"2+2"}]`),
		},
		{
			name: "listed", path: "/listeCalismalar",
			wantCode: http.StatusOK, wantData: []byte(`["qwxFen1.json"]`),
		},
		{
			name: "no name", method: http.MethodPost, path: "/calismaKaydet",
			body:     []byte(`{"sorular":[]}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"calismaIsmi":"this field is required"}}`),
		},
		{
			name: "name without letters", method: http.MethodPost, path: "/calismaKaydet",
			body:     []byte(`{"calismaIsmi":"***","sorular":[]}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"calismaIsmi":"calismaIsmi must contain letters or digits"}}`),
		},
	})
}

func Test_studyApi_archive(t *testing.T) {
	server, env := setup(t)
	serve(t, server, http.MethodPost, "/calismaKaydet", []byte(`{"calismaIsmi":"Fen1","sorular":[]}`))
	env.WriteFile(t, "qwxFen2.json", `[{"soru":"2+2"}]`)
	env.WriteFile(t, "www_Fen2.json", `[{"ogrenciNo":"201","sinif":"9B","cevaplar":["4"],"puanlar":{},"girisSayisi":1,"degerlendirme":{}}]`)

	runTests(t, server, []httpTest{
		{
			name: "files are listed before migration", path: "/listeCalismalar",
			wantCode: http.StatusOK, wantData: []byte(`["qwxFen1.json","qwxFen2.json","www_Fen2.json"]`),
		},
		{
			name: "archive a study only on disk", method: http.MethodPost, path: "/arsivle",
			body:     []byte(`{"dosyaIsmi":"qwxFen2.json"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "active studies", path: "/listeCalismalar",
			wantCode: http.StatusOK, wantData: []byte(`["qwxFen1.json"]`),
		},
		{
			name: "archived studies", path: "/arsivListesi",
			wantCode: http.StatusOK, wantData: []byte(`["qwxFen2.json","www_Fen2.json"]`),
		},
		{
			name: "management listing", path: "/yonetimDosyaListesi",
			wantCode: http.StatusOK,
			wantData: []byte(`[
				{"dosya_adi":"qwxFen1.json","arsivde":false},
				{"dosya_adi":"qwxFen2.json","arsivde":true},
				{"dosya_adi":"veritabani.json","arsivde":false},
				{"dosya_adi":"www_Fen2.json","arsivde":true}
			]`),
		},
		{
			name: "unarchive by study name", method: http.MethodPost, path: "/arsivdenGeriYukle",
			body:     []byte(`{"dosyaIsmi":"Fen2"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "archive list emptied", path: "/arsivListesi",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "archive a missing study", method: http.MethodPost, path: "/arsivle",
			body:     []byte(`{"dosyaIsmi":"qwxYok.json"}`),
			wantCode: http.StatusNotFound, wantData: []byte(`{"status":"dosya_yok"}`),
		},
		{
			name: "archive without name", method: http.MethodPost, path: "/arsivle",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"dosyaIsmi":"this field is required"}}`),
		},
	})
}

func Test_studyApi_destroy(t *testing.T) {
	server, env := setup(t)
	serve(t, server, http.MethodPost, "/calismaKaydet", []byte(`{"calismaIsmi":"Fen1","sorular":[]}`))
	env.WriteFile(t, "www_Fen1.json", `[]`)
	env.WriteFile(t, "qqq9AFen1.json", `{"sinif":"9A","calisma":"Fen1"}`)
	env.WriteFile(t, "gggFen19A.json", `[["101"]]`)
	env.WriteFile(t, "qwxFen10.json", `[]`)

	runTests(t, server, []httpTest{
		{
			name: "delete", method: http.MethodPost, path: "/calismaSil",
			body:     []byte(`{"calismaIsmi":"Fen1"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "deleted", path: "/calismaGetir?isim=qwxFen1.json",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "evaluations deleted", path: "/calismaGetir?isim=www_Fen1.json",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "delete a missing study", method: http.MethodPost, path: "/calismaSil",
			body:     []byte(`{"calismaIsmi":"Yok"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
	})

	for name, want := range map[string]bool{
		"/www_Fen1.json":  false,
		"/qqq9AFen1.json": false,
		"/gggFen19A.json": true,
		"/qwxFen10.json":  true,
	} {
		ok, err := afero.Exists(env.FS, name)
		require.NoError(t, err)
		assert.Equal(t, want, ok, name)
	}
}

func Test_studyApi_assignments(t *testing.T) {
	server, _ := setup(t)
	assignment := `{"id":"x1","sinif":"9A","calisma":"Fen1","yontem":"bireysel","gorunur":true}`

	runTests(t, server, []httpTest{
		{
			name: "save", method: http.MethodPost, path: "/atamaKaydet",
			body:     []byte(assignment),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "query", path: "/atamalar?calisma=Fen1",
			wantCode: http.StatusOK, wantData: []byte(`[` + assignment + `]`),
		},
		{
			name: "query another class", path: "/atamalar?sinif=9B",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "by file name", path: "/calismaGetir?isim=qqq9AFen1.json",
			wantCode: http.StatusOK, wantData: []byte(assignment),
		},
		{
			name: "study created with the assignment", path: "/listeCalismalar",
			wantCode: http.StatusOK, wantData: []byte(`["qqq9AFen1.json","qwxFen1.json"]`),
		},
		{
			name: "no study nor class", method: http.MethodPost, path: "/atamaKaydet",
			body:     []byte(`{"id":"x2"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"calisma":"calisma and sinif are required","sinif":"calisma and sinif are required"}}`),
		},
		{
			name: "delete", method: http.MethodPost, path: "/atamaSil",
			body:     []byte(`{"calisma":"Fen1","sinif":"9A"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "deleted", path: "/atamalar?calisma=Fen1",
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "delete again", method: http.MethodPost, path: "/atamaSil",
			body:     []byte(`{"calisma":"Fen1","sinif":"9A"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "delete without class", method: http.MethodPost, path: "/atamaSil",
			body:     []byte(`{"calisma":"Fen1"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"sinif":"this field is required"}}`),
		},
	})
}

func Test_studyApi_assignmentClassWithSpaces(t *testing.T) {
	server, _ := setup(t)
	assignment := `{"id":"k1","sinif":"9 A","calisma":"Kimya","yontem":"grup"}`

	runTests(t, server, []httpTest{
		{
			name: "save", method: http.MethodPost, path: "/atamaKaydet",
			body:     []byte(assignment),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "listed under the rendered name", path: "/listeCalismalar",
			wantCode: http.StatusOK, wantData: []byte(`["qqq9AKimya.json","qwxKimya.json"]`),
		},
		{
			name: "by rendered name", path: "/calismaGetir?isim=qqq9AKimya.json",
			wantCode: http.StatusOK, wantData: []byte(assignment),
		},
	})
}
