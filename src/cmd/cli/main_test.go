package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screen-grader/src/credentials"
	"screen-grader/src/llm"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func run(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := runWithArgs(context.Background(), append([]string{"grader-cli"}, args...),
		streams{in: bytes.NewReader(stdin), out: &out, err: &errOut})
	return out.String(), errOut.String(), err
}

// isolate points the config at test servers and a private settings file.
func isolate(t *testing.T, ocrURL, llmURL string) string {
	t.Helper()
	t.Setenv("SCREEN_GRADER_ENV", "")
	t.Setenv("OCR_API_KEY", "")
	t.Setenv("KIMI_API_KEY", "")
	t.Setenv("OCR_ENDPOINT", ocrURL)
	t.Setenv("LLM_BASE_URL", llmURL)
	return filepath.Join(t.TempDir(), "settings.yaml")
}

func fakeServices(t *testing.T, answer string) (*httptest.Server, *httptest.Server) {
	ocrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "ocr-key" {
			t.Errorf("apikey header = %q", r.Header.Get("apikey"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ParsedResults": []map[string]string{{"ParsedText": "1.选A"}},
		})
	}))
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-kimi-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(llm.ChatResponse{Choices: []llm.Choice{{Message: llm.ResponseMessage{Content: answer}}}})
	}))
	t.Cleanup(ocrSrv.Close)
	t.Cleanup(llmSrv.Close)
	return ocrSrv, llmSrv
}

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "single dash long flags",
			in:   []string{"grader-cli", "grade", "-file", "/tmp/a.png", "-json"},
			out:  []string{"grader-cli", "grade", "--file", "/tmp/a.png", "--json"},
		},
		{
			name: "equals form",
			in:   []string{"grader-cli", "keys", "set", "-ocr-key=abc", "-kimi-key=sk-1"},
			out:  []string{"grader-cli", "keys", "set", "--ocr-key=abc", "--kimi-key=sk-1"},
		},
		{
			name: "short and unknown flags unchanged",
			in:   []string{"grader-cli", "-v", "grade", "--file", "-", "-filex"},
			out:  []string{"grader-cli", "-v", "grade", "--file", "-", "-filex"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if strings.Join(got, " ") != strings.Join(tt.out, " ") {
				t.Fatalf("got %q, want %q", got, tt.out)
			}
		})
	}
}

func TestKeysSetShowClear(t *testing.T) {
	settings := isolate(t, "http://unused", "http://unused")

	if _, _, err := run(t, nil, "keys", "set", "--settings", settings, "--ocr-key", "ocr-key-1234", "--kimi-key", "not-sk"); err == nil {
		t.Fatal("Kimi key without sk- prefix must be rejected")
	}
	if _, _, err := run(t, nil, "keys", "set", "--settings", settings, "--ocr-key", "ocr-key-1234"); err == nil {
		t.Fatal("set with one key must fail")
	}
	if _, _, err := run(t, nil, "keys", "set", "--settings", settings, "--ocr-key", "ocr-key-1234", "--kimi-key", "sk-abcdefgh9876"); err != nil {
		t.Fatalf("keys set: %v", err)
	}

	c, err := credentials.NewStore(settings).Load()
	if err != nil || c.OCRKey != "ocr-key-1234" || c.LLMKey != "sk-abcdefgh9876" {
		t.Fatalf("stored %+v, %v", c, err)
	}

	out, _, err := run(t, nil, "keys", "show", "--settings", settings)
	if err != nil {
		t.Fatalf("keys show: %v", err)
	}
	if strings.Contains(out, "sk-abcdefgh9876") || !strings.Contains(out, "sk-a...9876") {
		t.Fatalf("keys show must redact, got:\n%s", out)
	}

	if _, _, err := run(t, nil, "keys", "clear", "--settings", settings); err != nil {
		t.Fatalf("keys clear: %v", err)
	}
	out, _, _ = run(t, nil, "keys", "show", "--settings", settings)
	if strings.Count(out, "(not set)") != 2 {
		t.Fatalf("keys not cleared:\n%s", out)
	}
}

func TestGradeFromFile(t *testing.T) {
	ocrSrv, llmSrv := fakeServices(t, "1.A：选A\n噪声")
	settings := isolate(t, ocrSrv.URL, llmSrv.URL)
	if err := credentials.NewStore(settings).Save("ocr-key", "sk-kimi-key"); err != nil {
		t.Fatal(err)
	}

	img := filepath.Join(t.TempDir(), "sheet.png")
	if err := os.WriteFile(img, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, nil, "grade", "--settings", settings, "--file", img)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if out != "1.A：选A\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestGradeStdinJSON(t *testing.T) {
	ocrSrv, llmSrv := fakeServices(t, "1.B：x\n2.N/A：y")
	settings := isolate(t, ocrSrv.URL, llmSrv.URL)
	if err := credentials.NewStore(settings).Save("ocr-key", "sk-kimi-key"); err != nil {
		t.Fatal(err)
	}

	out, stderr, err := run(t, pngBytes(t), "-v", "grade", "--settings", settings, "--file", "-", "--json")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	var res GradeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if res.Answers != "1.B：x\n2.N/A：y" || res.Source != "-" || res.Lines != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(stderr, "[verbose] OCR...") {
		t.Fatalf("verbose status missing from stderr: %q", stderr)
	}
}

func TestGradeRejectsBadInput(t *testing.T) {
	settings := isolate(t, "http://unused", "http://unused")

	if _, _, err := run(t, pngBytes(t), "grade", "--settings", settings, "--file", "-"); err == nil || !strings.Contains(err.Error(), "keys set") {
		t.Fatalf("missing keys: err = %v", err)
	}

	if err := credentials.NewStore(settings).Save("ocr-key", "sk-kimi-key"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, []byte("GIF89a"), "grade", "--settings", settings, "--file", "-"); err == nil || !strings.Contains(err.Error(), "not a valid PNG") {
		t.Fatalf("non-PNG: err = %v", err)
	}
	if _, _, err := run(t, nil, "grade", "--settings", settings, "--file", "-"); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("empty input: err = %v", err)
	}
	if _, _, err := run(t, nil, "grade", "--settings", settings); err == nil {
		t.Fatal("--file is required")
	}
}
