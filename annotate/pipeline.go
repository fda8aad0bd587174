package annotate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// DefaultBatchSize is the fixed number of messages per LLM call.
const DefaultBatchSize = 3

// Pipeline runs the batched annotation flow for chat export files: resume
// filtering, fixed-size batching over a bounded worker pool, heuristics +
// normalization per message, and a snapshot write after every batch merge.
type Pipeline struct {
	Model      string
	BatchSize  int
	NumWorkers int
	DryRun     bool
	Resume     bool

	// Annotator may be nil (heuristics-only); it is also skipped entirely
	// in dry-run mode.
	Annotator BatchAnnotator
	Logger    *zap.Logger
	CallLog   *CallLog
}

// ProcessFile annotates one chat export file. Annotation failures never
// surface as errors; the only error paths are unreadable input and failed
// snapshot persistence. Returns the snapshot path and the final sorted
// record set.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath string) (string, []LabelRecord, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	workers := p.NumWorkers
	if workers <= 0 {
		workers = 1
	}

	export, err := LoadChatExport(inputPath)
	if err != nil {
		return "", nil, err
	}
	source := filepath.Base(inputPath)

	outPath := OutputPath(inputPath, p.Model)
	store := NewStore(outPath, export.Messages)
	if p.Resume {
		if loaded := store.LoadExisting(LegacyOutputPath(inputPath)); loaded > 0 {
			logger.Info("resuming from existing annotations",
				zap.String("source", source),
				zap.Int("existing", loaded))
		}
	}

	pending := store.Pending(export.Messages)
	if len(pending) == 0 {
		if store.Len() > 0 {
			if err := store.WriteSnapshot(); err != nil {
				return "", nil, err
			}
		}
		logger.Info("nothing pending", zap.String("source", source), zap.Int("records", store.Len()))
		return outPath, store.Records(), nil
	}

	batches := chunkMessages(pending, batchSize)
	logger.Info("annotating",
		zap.String("source", source),
		zap.Int("pending", len(pending)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", workers),
		zap.Bool("dry_run", p.DryRun))

	sem := make(chan struct{}, workers)
	errCh := make(chan error, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []Message) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			p.CallLog.Write(source, idx, "dispatch", "info", fmt.Sprintf("batch_len=%d", len(batch)))
			rows := p.annotateBatch(ctx, logger, source, idx, batch)

			// Merge-then-persist is one critical section; the snapshot on
			// disk is complete after every finished batch.
			if err := store.MergeAndSave(batch, rows); err != nil {
				p.CallLog.Write(source, idx, "persist", "error", err.Error())
				errCh <- fmt.Errorf("persist batch %d: %w", idx, err)
				return
			}
			p.CallLog.Write(source, idx, "merge", "info", fmt.Sprintf("records=%d", len(rows)))
		}(i, batch)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return "", nil, err
		}
	}

	if err := store.WriteSnapshot(); err != nil {
		return "", nil, err
	}
	logger.Info("file done", zap.String("source", source), zap.Int("records", store.Len()))
	return outPath, store.Records(), nil
}

// annotateBatch computes the final records for one batch. A soft LLM failure
// (nil or wrong-length result) downgrades the whole batch to heuristics-only;
// nothing propagates to the caller.
func (p *Pipeline) annotateBatch(ctx context.Context, logger *zap.Logger, source string, idx int, batch []Message) []LabelRecord {
	var partials []PartialLabel
	if !p.DryRun && p.Annotator != nil {
		partials = p.Annotator.AnnotateBatch(ctx, batch)
		if len(partials) != len(batch) {
			if partials != nil {
				logger.Warn("llm result length mismatch, using heuristics only",
					zap.String("source", source),
					zap.Int("batch", idx),
					zap.Int("got", len(partials)),
					zap.Int("want", len(batch)))
			}
			p.CallLog.Write(source, idx, "llm", "warn", "soft failure, heuristics-only fallback")
			partials = nil
		}
	}
	if partials == nil {
		partials = make([]PartialLabel, len(batch))
	}

	rows := make([]LabelRecord, 0, len(batch))
	for i, msg := range batch {
		rec := ApplyHeuristics(partials[i], msg)
		rec = Normalize(rec, msg.Body)
		rec.attachProvenance(msg)
		rows = append(rows, rec)
	}
	return rows
}

// chunkMessages splits pending messages into contiguous fixed-size batches,
// preserving order; the last batch may be shorter.
func chunkMessages(msgs []Message, size int) [][]Message {
	if size <= 0 || len(msgs) == 0 {
		return nil
	}
	batches := make([][]Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		batches = append(batches, msgs[start:end])
	}
	return batches
}
