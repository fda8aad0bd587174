package annotate

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var combinedCSVHeader = []string{
	"message_id",
	"timestamp",
	"sender_id",
	"polarity",
	"emotion_primary",
	"emotion_summary",
	"stress_score",
	"uncertainty_score",
	"help_request",
	"helpfulness",
	"gratitude",
	"toxicity_score",
	"info_drop",
	"reactions_pos",
	"reactions_neu",
	"reactions_neg",
	"evidence_terms",
	"reply_to_ref",
	"reply_to_quote",
	"body",
}

// WriteCombinedCSV flattens records from all processed sources into one CSV,
// decomposing reaction_sentiment into positive/neutral/negative counts and
// joining evidence terms with "|".
func WriteCombinedCSV(path string, rows []LabelRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create combined csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(combinedCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		pos, neu, neg := 0, 0, 0
		if r.ReactionSent != nil {
			pos, neu, neg = r.ReactionSent.Positive, r.ReactionSent.Neutral, r.ReactionSent.Negative
		}
		record := []string{
			r.MessageID,
			r.Timestamp,
			r.SenderID,
			formatFloat(r.Polarity),
			r.EmotionPrimary,
			r.EmotionSummary,
			formatFloat(r.StressScore),
			formatFloat(r.UncertaintyScore),
			strconv.FormatBool(r.HelpRequest),
			formatFloat(r.Helpfulness),
			strconv.FormatBool(r.Gratitude),
			formatFloat(r.ToxicityScore),
			strconv.FormatBool(r.InfoDrop),
			strconv.Itoa(pos),
			strconv.Itoa(neu),
			strconv.Itoa(neg),
			strings.Join(r.EvidenceTerms, "|"),
			r.ReplyToRef,
			r.ReplyToQuote,
			r.Body,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush combined csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
