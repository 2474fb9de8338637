package vault_test

import (
	"strings"
	"testing"

	"valet/internal/vault"
)

func TestDocumentEncodeRoundTrip(t *testing.T) {
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "email"},
			{Key: "source", Value: "gmail_watcher"},
			{Key: "subject", Value: "Q3 invoice"},
		},
		Body: "Please review the attached plan.",
	}
	data, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		t.Errorf("missing front matter fence: %q", text)
	}
	typeIdx := strings.Index(text, "type:")
	sourceIdx := strings.Index(text, "source:")
	subjectIdx := strings.Index(text, "subject:")
	if typeIdx < 0 || sourceIdx < 0 || subjectIdx < 0 || typeIdx > sourceIdx || sourceIdx > subjectIdx {
		t.Errorf("front matter order not preserved: %q", text)
	}

	meta, body, parseErr := vault.ParseDocument(data)
	if parseErr != nil {
		t.Fatalf("ParseDocument: %v", parseErr)
	}
	if meta["type"] != "email" || meta["subject"] != "Q3 invoice" {
		t.Errorf("meta = %#v", meta)
	}
	if body != "Please review the attached plan." {
		t.Errorf("body = %q", body)
	}
}

func TestEncodeWithoutMetaOmitsFences(t *testing.T) {
	data, err := vault.Document{Body: "plain note"}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "---") {
		t.Errorf("unexpected front matter fences: %q", data)
	}
}

func TestParseDocumentWithoutFrontMatter(t *testing.T) {
	meta, body, err := vault.ParseDocument([]byte("Notes from today's standup.\n"))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("meta = %#v, want empty", meta)
	}
	if body != "Notes from today's standup." {
		t.Errorf("body = %q", body)
	}
}

func TestParseDocumentMalformedYAML(t *testing.T) {
	meta, body, err := vault.ParseDocument([]byte("---\nkey: [broken\n---\n\nstill readable"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if len(meta) != 0 {
		t.Errorf("meta = %#v, want empty", meta)
	}
	if body != "still readable" {
		t.Errorf("body = %q", body)
	}
}

func TestFrontMatterGet(t *testing.T) {
	fm := vault.FrontMatter{{Key: "task", Value: "weekly_review"}}
	if got := fm.Get("task"); got != "weekly_review" {
		t.Errorf("Get(task) = %q", got)
	}
	if got := fm.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q", got)
	}
}

func TestRecordKindDefaultsUnknown(t *testing.T) {
	rec := &vault.Record{Meta: map[string]string{}}
	if got := rec.Kind(); got != "unknown" {
		t.Errorf("Kind = %q", got)
	}
}
