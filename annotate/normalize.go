package annotate

import (
	"math"
	"strings"
)

// Normalize enforces cross-field consistency on a heuristics-filled record.
// Rules are ordered; later rules override earlier ones. Total: every input
// yields a schema-conformant record.
func Normalize(rec LabelRecord, messageText string) LabelRecord {
	emotion := rec.EmotionPrimary
	if _, ok := allowedEmotions[emotion]; !ok || emotion == "" {
		emotion = EmotionNeutralInfo
	}

	if rec.Gratitude {
		emotion = EmotionGratitude
		rec.Polarity = maxFloat(round2(maxFloat(rec.Polarity, 0.6)), 0.6)
		if rec.EmotionSummary == "" {
			rec.EmotionSummary = "thankful"
		}
	} else if rec.HelpRequest {
		if rec.StressScore >= 0.6 {
			emotion = EmotionStress
		} else {
			emotion = EmotionConfusion
		}
		helpCap := 0.2
		if hasConcreteAnchor(messageText) {
			helpCap = 0.4
		}
		rec.Helpfulness = minFloat(rec.Helpfulness, helpCap)
		if rec.ToxicityScore < 0.2 {
			rec.Polarity = clampRange(rec.Polarity, -0.2, 0.2)
		}
		if rec.EmotionSummary == "" {
			if emotion == EmotionStress {
				rec.EmotionSummary = "stressed"
			} else {
				rec.EmotionSummary = "confused"
			}
		}
	}

	// Final polarity range depends on the resulting emotion: only anger may
	// reach -1.0, only gratitude may reach +1.0.
	lo := -0.8
	if emotion == EmotionAnger {
		lo = -1.0
	}
	hi := 0.8
	if emotion == EmotionGratitude {
		hi = 1.0
	}
	rec.Polarity = round2(clampRange(rec.Polarity, lo, hi))

	rec.EmotionPrimary = emotion
	rec.EmotionSummary = trimWords(rec.EmotionSummary, 2)
	return rec
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func trimWords(s string, max int) string {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > max {
		fields = fields[:max]
	}
	return strings.Join(fields, " ")
}
