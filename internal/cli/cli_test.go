package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/pet-classifier/internal/feedback"
)

func TestFeedbackStatsCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := feedback.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	path, err := store.SaveImage("0001", []byte("\x89PNG\r\n\x1a\nfake"))
	if err != nil {
		t.Fatal(err)
	}
	conf := 0.9
	if err := store.SaveMetadata(feedback.Record{ID: "0001", Prediction: "cat", FeedbackType: feedback.Accept, Confidence: &conf, ImagePath: path}); err != nil {
		t.Fatal(err)
	}
	// A record whose image never made it to disk.
	os.WriteFile(filepath.Join(dir, "metadata", "0002.json"), []byte(`{"id":"0002","prediction":"dog","feedback_type":"reject","image_path":"images/0002.png"}`), 0o644)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"feedback", "stats", "--feedback-dir", dir})
	defer rootCmd.SetArgs(nil)

	if err := Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var stats feedback.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("Invalid JSON output %q: %v", out.String(), err)
	}
	if stats.Total != 1 || stats.Accepted != 1 || stats.Invalid != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestEvaluateRequiresDataset(t *testing.T) {
	rootCmd.SetArgs([]string{"evaluate"})
	defer rootCmd.SetArgs(nil)

	if err := Execute(); err == nil {
		t.Error("Expected missing --dataset to fail")
	}
}
