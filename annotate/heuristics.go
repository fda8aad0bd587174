package annotate

import "strings"

// ApplyHeuristics merges an untrusted model partial with deterministic
// lexicon signals from the message text and returns a fully populated label
// record. Pure: identical inputs always yield the identical record.
func ApplyHeuristics(model PartialLabel, msg Message) LabelRecord {
	rec := defaultLabelRecord()
	rec.overlay(model)

	text := strings.TrimSpace(msg.Body)
	lower := strings.ToLower(text)

	// Reaction sentiment gives a small polarity nudge.
	if rs := SummarizeReactions(msg.Reactions); rs != nil {
		rec.ReactionSent = rs
		total := rs.Positive + rs.Negative
		if total == 0 {
			total = 1
		}
		bump := reactionBumpWeight * float64(rs.Positive-rs.Negative) / float64(total)
		bump = clampRange(bump, -reactionBumpLimit, reactionBumpLimit)
		rec.Polarity = clampRange(rec.Polarity+bump, -1, 1)
	}

	if hasGratitudeCue(text, lower) {
		rec.Gratitude = true
		rec.Polarity = maxFloat(rec.Polarity, 0.6)
	}

	if hasInfoCue(text, lower) {
		rec.InfoDrop = true
		rec.Helpfulness = maxFloat(rec.Helpfulness, 0.4)
	}

	if strings.Contains(text, "?") || containsAny(text, helpTokensHE) || containsAny(lower, helpTokensEN) {
		rec.UncertaintyScore = maxFloat(rec.UncertaintyScore, 0.6)
		if startsInterrogative(text) || containsAny(text, helpTokensHE) || containsAny(lower, helpTokensEN) {
			rec.HelpRequest = true
		}
	}

	if containsAny(text, stressTokensHE) || containsAny(lower, stressTokensEN) || strings.Contains(text, "!!!") {
		rec.StressScore = maxFloat(rec.StressScore, 0.6)
		rec.Polarity = minFloat(rec.Polarity, -0.2)
	}

	if containsAny(text, humorTokensHE) || containsAny(lower, humorTokensEN) {
		if rec.EmotionPrimary == EmotionNeutralInfo {
			rec.EmotionPrimary = EmotionHumor
		}
		rec.Polarity = maxFloat(rec.Polarity, 0.2)
	}

	// The heuristic never lowers model toxicity, only raises it.
	rec.ToxicityScore = maxFloat(clampRange(rec.ToxicityScore, 0, 1), toxicityHeuristic(text, lower))

	rec.Polarity = clampRange(rec.Polarity, -1, 1)
	rec.StressScore = clampRange(rec.StressScore, 0, 1)
	rec.UncertaintyScore = clampRange(rec.UncertaintyScore, 0, 1)
	rec.Helpfulness = clampRange(rec.Helpfulness, 0, 1)

	rec.EvidenceTerms = fallbackEvidenceTerms(rec.EvidenceTerms, text, lower)

	if rec.EmotionSummary == "" {
		rec.EmotionSummary = fallbackEmotionSummary(rec)
	}

	return rec
}

// SummarizeReactions classifies reactions by the fixed emoji polarity sets.
// Returns nil when the message has no reactions.
func SummarizeReactions(reactions []Reaction) *ReactionSentiment {
	if len(reactions) == 0 {
		return nil
	}
	rs := &ReactionSentiment{}
	for _, r := range reactions {
		if _, ok := emojiPositive[r.Emoji]; ok {
			rs.Positive += r.Count
			continue
		}
		if _, ok := emojiNegative[r.Emoji]; ok {
			rs.Negative += r.Count
			continue
		}
		rs.Neutral += r.Count
	}
	return rs
}

func toxicityHeuristic(text, lower string) float64 {
	score := 0.0
	if containsAny(lower, toxTokensEN) || containsAny(text, toxTokensHE) {
		score = toxLexiconScore
	}
	if score < toxSymbolScore && containsAny(text, toxSymbols) {
		score = toxSymbolScore
	}
	return score
}

func hasConcreteAnchor(text string) bool {
	return anchorRe.MatchString(text)
}

// fallbackEvidenceTerms keeps model-provided terms when present (capped at 5),
// otherwise derives cues from the text in detection order.
func fallbackEvidenceTerms(modelTerms []string, text, lower string) []string {
	if len(modelTerms) > 0 {
		if len(modelTerms) > 5 {
			modelTerms = modelTerms[:5]
		}
		return modelTerms
	}

	var cues []string
	if strings.Contains(text, "http") {
		cues = append(cues, "http")
	}
	if hasGratitudeCue(text, lower) {
		cues = append(cues, "תודה/❤️/🙏")
	}
	if strings.Contains(text, "?") {
		cues = append(cues, "?")
	}
	cues = append(cues, anchorRe.FindAllString(text, 2)...)
	// Evidence cites the literal span, so only a raw-text hit counts here
	// even though stress detection itself is case-insensitive for English.
	for _, tok := range append(append([]string(nil), stressTokensHE...), stressTokensEN...) {
		if strings.Contains(text, tok) {
			cues = append(cues, tok)
			break
		}
	}
	if containsAny(text, humorTokensHE) || containsAny(lower, humorTokensEN) {
		cues = append(cues, "humor/😂")
	}

	out := dedupeStrings(cues)
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// fallbackEmotionSummary derives a 1-word summary from the strongest signal,
// strongest first.
func fallbackEmotionSummary(rec LabelRecord) string {
	switch {
	case rec.Gratitude:
		return "thankful"
	case rec.HelpRequest:
		if rec.StressScore >= 0.6 {
			return "stressed"
		}
		return "confused"
	case rec.InfoDrop:
		return "informative"
	case rec.EmotionPrimary == EmotionHumor:
		return "playful"
	case rec.ToxicityScore >= 0.5:
		return "hostile"
	default:
		return "neutral"
	}
}

func hasGratitudeCue(text, lower string) bool {
	return containsAny(text, thanksTokensHE) ||
		containsAny(lower, thanksTokensEN) ||
		containsAny(text, gratitudeEmojis)
}

func hasInfoCue(text, lower string) bool {
	return strings.Contains(text, "http://") ||
		strings.Contains(text, "https://") ||
		containsAny(text, infoTokensHE) ||
		containsAny(lower, infoTokensEN)
}

func startsInterrogative(text string) bool {
	return strings.HasPrefix(text, "מישהו") || strings.HasPrefix(text, "מישהי")
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// dedupeStrings removes duplicates and empties while preserving first-seen order.
func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
