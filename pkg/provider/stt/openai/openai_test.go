package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/stt/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	var gotModel, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"放入 苹果 五个"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL), openai.WithLanguage("zh"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "放入 苹果 五个" {
		t.Errorf("text = %q", text)
	}
	if gotModel != "whisper-1" || gotLang != "zh" {
		t.Errorf("model=%q language=%q", gotModel, gotLang)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("sk-test", openai.WithBaseURL("http://127.0.0.1:1"))
	if _, err := p.Transcribe(context.Background(), []byte{1}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}
