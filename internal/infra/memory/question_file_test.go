package memory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadQuestionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	data := `
History:
  - Question: First?
    Option A: one
    Option B: two
    Option C: 3
    Option D: 4.5
    Answer: a
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	topics, err := LoadQuestionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	records := topics["History"]
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Question != "First?" || rec.Options[2] != "3" || rec.Options[3] != "4.5" || rec.Answer != "a" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestLoadQuestionFileExample(t *testing.T) {
	topics, err := LoadQuestionFile(filepath.Join("..", "..", "..", "config", "questions.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if len(topics["History"]) != 2 || len(topics["Geography"]) != 1 {
		t.Fatalf("unexpected example contents: %v", topics)
	}
	for topic, records := range topics {
		for _, rec := range records {
			if _, err := rec.Poll(); err != nil {
				t.Fatalf("example question in %s is malformed: %v", topic, err)
			}
		}
	}
}
