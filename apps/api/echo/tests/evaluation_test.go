package tests

import (
	"net/http"
	"testing"
)

func Test_evaluationApi(t *testing.T) {
	server, env := setup(t)
	env.WriteFile(t, "qwxFen1.json", `[{"soru":"a"}]`)
	env.WriteFile(t, "www_Fen1.json",
		`[{"ogrenciNo":"101","sinif":"9A","cevaplar":["x","y"],"puanlar":{"0":[1]},"girisSayisi":1,"degerlendirme":{}}]`)

	runTests(t, server, []httpTest{
		{
			name: "score a study only on disk", method: http.MethodPost, path: "/puanKaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","ogrenciNo":101,"sinif":"9A","soruIndex":1,"cevapIndex":1,"puan":"3"}`),
			wantCode: http.StatusOK, wantData: okData,
		},
		{
			name: "finish", method: http.MethodPost, path: "/degerlendirmeBitir",
			body:     []byte(`{"dosyaAdi":"www_Fen1","ogrenciNo":"101"}`),
			wantCode: http.StatusOK, wantData: []byte(`{"status":"ok","toplam":4}`),
		},
		{
			name: "scored and finished", path: "/calismaGetir?isim=www_Fen1.json",
			wantCode: http.StatusOK,
			wantData: []byte(`[{"ogrenciNo":"101","sinif":"9A","cevaplar":["x","y"],"puanlar":{"0":[1],"1":[null,3]},"girisSayisi":1,"degerlendirme":{"toplam":4,"bitti":true}}]`),
		},
		{
			name: "reset", method: http.MethodPost, path: "/degerlendirmeSifirla",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","sinif":"9A"}`),
			wantCode: http.StatusOK, wantData: []byte(`{"status":"ok","sifirlanan":1}`),
		},
		{
			name: "reset content", path: "/calismaGetir?isim=www_Fen1.json",
			wantCode: http.StatusOK,
			wantData: []byte(`[{"ogrenciNo":"101","sinif":"9A","cevaplar":["x","y"],"puanlar":{},"girisSayisi":1,"degerlendirme":{"toplam":0,"bitti":false}}]`),
		},
		{
			name: "reset another class", method: http.MethodPost, path: "/degerlendirmeSifirla",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","sinif":"9B"}`),
			wantCode: http.StatusOK, wantData: []byte(`{"status":"ok","sifirlanan":0}`),
		},
	})
}

func Test_evaluationApi_errors(t *testing.T) {
	server, _ := setup(t)
	serve(t, server, http.MethodPost, "/calismaKaydet", []byte(`{"calismaIsmi":"Fen1","sorular":[]}`))

	runTests(t, server, []httpTest{
		{
			name: "finish a missing student", method: http.MethodPost, path: "/degerlendirmeBitir",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","ogrenciNo":"999"}`),
			wantCode: http.StatusNotFound, wantData: []byte(`{"status":"dosya_yok"}`),
		},
		{
			name: "score a missing study", method: http.MethodPost, path: "/puanKaydet",
			body:     []byte(`{"dosyaAdi":"www_Yok.json","ogrenciNo":"101","soruIndex":0,"cevapIndex":0,"puan":1}`),
			wantCode: http.StatusNotFound, wantData: []byte(`{"status":"dosya_yok"}`),
		},
		{
			name: "reset a missing study", method: http.MethodPost, path: "/degerlendirmeSifirla",
			body:     []byte(`{"dosyaAdi":"www_Yok.json","sinif":"9A"}`),
			wantCode: http.StatusNotFound, wantData: []byte(`{"status":"dosya_yok"}`),
		},
		{
			name: "negative question", method: http.MethodPost, path: "/puanKaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","ogrenciNo":"101","soruIndex":-1,"cevapIndex":0,"puan":1}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"soruIndex":"soruIndex must be 0 or greater"}}`),
		},
		{
			name: "no student", method: http.MethodPost, path: "/puanKaydet",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json","soruIndex":0,"cevapIndex":0,"puan":1}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"ogrenciNo":"this field is required"}}`),
		},
		{
			name: "reset without class", method: http.MethodPost, path: "/degerlendirmeSifirla",
			body:     []byte(`{"dosyaAdi":"www_Fen1.json"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"eksik","alanlar":{"sinif":"this field is required"}}`),
		},
	})
}
