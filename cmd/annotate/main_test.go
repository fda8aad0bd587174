package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hiddenreplies/chat-annotator/annotate"
)

func TestShutdownClosesCallLog(t *testing.T) {
	callLog, err := annotate.OpenCallLog(filepath.Join(t.TempDir(), "calls.db"), "run-1", "m")
	if err != nil {
		t.Fatalf("OpenCallLog: %v", err)
	}
	callLog.Write("chat.json", 0, "dispatch", "info", "x")

	shutdown(zap.NewNop(), callLog)

	if _, err := callLog.Count(); err == nil {
		t.Fatalf("Count succeeded after shutdown, call log not closed")
	}
}

func TestShutdownNilCallLog(t *testing.T) {
	// Fatal paths before the call log is opened pass a nil *CallLog.
	shutdown(zap.NewNop(), nil)
}
