package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

// recordingAnnotator captures every batch it receives and answers with fn,
// or nil (soft failure) when fn is unset.
type recordingAnnotator struct {
	mu      sync.Mutex
	batches [][]Message
	fn      func(msgs []Message) []PartialLabel
}

func (a *recordingAnnotator) AnnotateBatch(_ context.Context, msgs []Message) []PartialLabel {
	a.mu.Lock()
	a.batches = append(a.batches, append([]Message(nil), msgs...))
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(msgs)
	}
	return nil
}

func (a *recordingAnnotator) seenMessages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var all []Message
	for _, b := range a.batches {
		all = append(all, b...)
	}
	return all
}

func writeExportFile(t *testing.T, dir, name string, msgs []Message) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.MarshalIndent(ChatExport{Messages: msgs}, "", "  ")
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func TestPipeline_DryRunEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeExportFile(t, dir, "chat.json", []Message{
		{MessageID: "m1", SerialNumber: 1, Body: "תודה רבה! ❤️", Datetime: "2024-03-01T10:00:00Z", Sender: Sender{Phone: "+972500000001"}},
		{MessageID: "m2", SerialNumber: 2, Body: "דחוף! מישהו יכול לעזור עם שאלה 5?", Datetime: "2024-03-01T10:01:00Z", Sender: Sender{Phone: "+972500000002"}},
		{MessageID: "m3", SerialNumber: 3, Body: "בסדר", Datetime: "2024-03-01T10:02:00Z", Sender: Sender{Phone: "+972500000003"}},
	})

	p := &Pipeline{Model: "test-model", BatchSize: 2, NumWorkers: 2, DryRun: true, Resume: true}
	outPath, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if filepath.Base(outPath) != "chat_test-model_sentiment.json" {
		t.Fatalf("outPath=%q, unexpected name", outPath)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows)=%d, want 3", len(rows))
	}

	if !rows[0].Gratitude || rows[0].EmotionPrimary != EmotionGratitude || rows[0].Polarity < 0.6 {
		t.Fatalf("rows[0]=%+v, want gratitude record", rows[0])
	}
	if !rows[1].HelpRequest || rows[1].EmotionPrimary != EmotionStress || rows[1].Helpfulness > 0.4 {
		t.Fatalf("rows[1]=%+v, want stressed help request", rows[1])
	}
	if rows[1].SenderID != "+972500000002" || rows[1].Timestamp != "2024-03-01T10:01:00Z" {
		t.Fatalf("rows[1]=%+v, provenance not attached", rows[1])
	}

	// The snapshot on disk matches what ProcessFile returned.
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var persisted []LabelRecord
	if err := json.Unmarshal(b, &persisted); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if !reflect.DeepEqual(rows, persisted) {
		t.Fatalf("snapshot differs from returned records")
	}
}

func TestPipeline_SoftFailureMatchesDryRun(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{MessageID: "m1", SerialNumber: 1, Body: "תודה!", Datetime: "t1"},
		{MessageID: "m2", SerialNumber: 2, Body: "stuck on quiz 2, help?", Datetime: "t2"},
	}

	dryDir, liveDir := t.TempDir(), t.TempDir()
	dryInput := writeExportFile(t, dryDir, "chat.json", msgs)
	liveInput := writeExportFile(t, liveDir, "chat.json", msgs)

	dry := &Pipeline{Model: "m", BatchSize: 2, DryRun: true}
	_, dryRows, err := dry.ProcessFile(context.Background(), dryInput)
	if err != nil {
		t.Fatalf("dry ProcessFile: %v", err)
	}

	live := &Pipeline{Model: "m", BatchSize: 2, Annotator: &recordingAnnotator{}}
	_, liveRows, err := live.ProcessFile(context.Background(), liveInput)
	if err != nil {
		t.Fatalf("live ProcessFile: %v", err)
	}

	if !reflect.DeepEqual(dryRows, liveRows) {
		t.Fatalf("soft-failure output differs from dry run:\n%+v\n%+v", dryRows, liveRows)
	}
}

func TestPipeline_AnnotatorPartialsApplied(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeExportFile(t, dir, "chat.json", []Message{
		{MessageID: "m1", SerialNumber: 1, Body: "plain text"},
	})

	tox := 0.9
	ann := &recordingAnnotator{fn: func(msgs []Message) []PartialLabel {
		out := make([]PartialLabel, len(msgs))
		out[0].ToxicityScore = &tox
		return out
	}}
	p := &Pipeline{Model: "m", Annotator: ann}
	_, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if rows[0].ToxicityScore != 0.9 {
		t.Fatalf("toxicity_score=%v, want model value 0.9", rows[0].ToxicityScore)
	}
}

func TestPipeline_WrongLengthFallsBackToHeuristics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeExportFile(t, dir, "chat.json", []Message{
		{MessageID: "m1", SerialNumber: 1, Body: "a"},
		{MessageID: "m2", SerialNumber: 2, Body: "b"},
	})

	tox := 0.9
	ann := &recordingAnnotator{fn: func([]Message) []PartialLabel {
		return []PartialLabel{{ToxicityScore: &tox}}
	}}
	p := &Pipeline{Model: "m", BatchSize: 2, Annotator: ann}
	_, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	for i, r := range rows {
		if r.ToxicityScore != 0 {
			t.Fatalf("rows[%d].toxicity_score=%v, want heuristics-only 0", i, r.ToxicityScore)
		}
	}
}

func TestPipeline_ResumeOnlySendsPending(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	msgs := testMessages(10)
	input := writeExportFile(t, dir, "chat.json", msgs)

	var done []LabelRecord
	for i := 1; i <= 5; i++ {
		done = append(done, testRecord(fmt.Sprintf("m%d", i), i))
	}
	writeSnapshotFile(t, OutputPath(input, "m"), done)

	ann := &recordingAnnotator{}
	p := &Pipeline{Model: "m", BatchSize: 2, Resume: true, Annotator: ann}
	_, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("len(rows)=%d, want 10", len(rows))
	}

	seen := ann.seenMessages()
	if len(seen) != 5 {
		t.Fatalf("annotator saw %d messages, want 5 pending", len(seen))
	}
	for _, m := range seen {
		if m.SerialNumber <= 5 {
			t.Fatalf("annotator saw already-processed serial %d", m.SerialNumber)
		}
	}
}

func TestPipeline_ResumeOffReprocessesAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	msgs := testMessages(4)
	input := writeExportFile(t, dir, "chat.json", msgs)
	writeSnapshotFile(t, OutputPath(input, "m"), []LabelRecord{testRecord("m1", 1)})

	ann := &recordingAnnotator{}
	p := &Pipeline{Model: "m", BatchSize: 2, Resume: false, Annotator: ann}
	if _, _, err := p.ProcessFile(context.Background(), input); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if seen := ann.seenMessages(); len(seen) != 4 {
		t.Fatalf("annotator saw %d messages, want all 4", len(seen))
	}
}

func TestPipeline_ConcurrentBatchesAllMergedInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	msgs := testMessages(30)
	input := writeExportFile(t, dir, "chat.json", msgs)

	p := &Pipeline{Model: "m", BatchSize: 3, NumWorkers: 8, DryRun: true}
	_, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(rows) != 30 {
		t.Fatalf("len(rows)=%d, want 30", len(rows))
	}
	for i, r := range rows {
		if r.SerialNumber != i+1 {
			t.Fatalf("rows[%d].serial=%d, want %d", i, r.SerialNumber, i+1)
		}
	}
}

func TestPipeline_MessageWithoutIDDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeExportFile(t, dir, "chat.json", []Message{
		{MessageID: "m1", SerialNumber: 1, Body: "a"},
		{SerialNumber: 2, Body: "no id"},
		{MessageID: "m3", SerialNumber: 3, Body: "c"},
	})

	p := &Pipeline{Model: "m", DryRun: true}
	_, rows, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows)=%d, want 2 (id-less message dropped)", len(rows))
	}
	if rows[0].MessageID != "m1" || rows[1].MessageID != "m3" {
		t.Fatalf("rows=%+v, want m1 and m3", rows)
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeExportFile(t, dir, "chat.json", testMessages(6))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{Model: "m", BatchSize: 2, DryRun: true}
	if _, _, err := p.ProcessFile(ctx, input); err == nil {
		t.Fatalf("ProcessFile with cancelled context: want error")
	}
}

func TestPipeline_MissingInputFails(t *testing.T) {
	t.Parallel()

	p := &Pipeline{Model: "m", DryRun: true}
	if _, _, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("want error for missing input file")
	}
}

func TestChunkMessages(t *testing.T) {
	t.Parallel()

	batches := chunkMessages(testMessages(7), 3)
	if len(batches) != 3 {
		t.Fatalf("len(batches)=%d, want 3", len(batches))
	}
	if len(batches[2]) != 1 {
		t.Fatalf("last batch len=%d, want 1", len(batches[2]))
	}
	if batches[1][0].SerialNumber != 4 {
		t.Fatalf("batches[1][0].serial=%d, want 4", batches[1][0].SerialNumber)
	}
	if chunkMessages(nil, 3) != nil {
		t.Fatalf("chunkMessages(nil) should be nil")
	}
}
