package annotate

// Emotion labels form a closed set; anything else is reset to EmotionNeutralInfo
// by the normalization post-pass.
const (
	EmotionStress      = "stress"
	EmotionGratitude   = "gratitude"
	EmotionConfusion   = "confusion"
	EmotionNeutralInfo = "neutral_info"
	EmotionHumor       = "humor"
	EmotionAnger       = "anger"
	EmotionExcitement  = "excitement"
	EmotionOther       = "other"
)

var allowedEmotions = map[string]struct{}{
	EmotionStress:      {},
	EmotionGratitude:   {},
	EmotionConfusion:   {},
	EmotionNeutralInfo: {},
	EmotionHumor:       {},
	EmotionAnger:       {},
	EmotionExcitement:  {},
	EmotionOther:       {},
}

// ReactionSentiment aggregates a message's emoji reactions into
// positive/neutral/negative counts.
type ReactionSentiment struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// LabelRecord is the fully populated label set for one message. After
// ApplyHeuristics + Normalize every field holds a valid in-range value;
// a LabelRecord is never partially filled.
type LabelRecord struct {
	Polarity         float64            `json:"polarity"`
	EmotionPrimary   string             `json:"emotion_primary"`
	EmotionSummary   string             `json:"emotion_summary"`
	StressScore      float64            `json:"stress_score"`
	UncertaintyScore float64            `json:"uncertainty_score"`
	HelpRequest      bool               `json:"help_request"`
	Helpfulness      float64            `json:"helpfulness"`
	Gratitude        bool               `json:"gratitude"`
	ToxicityScore    float64            `json:"toxicity_score"`
	InfoDrop         bool               `json:"info_drop"`
	ReactionSent     *ReactionSentiment `json:"reaction_sentiment"`
	EvidenceTerms    []string           `json:"evidence_terms"`

	// Provenance copied from the source message.
	MessageID    string `json:"message_id"`
	Timestamp    string `json:"timestamp"`
	Body         string `json:"body"`
	SerialNumber int    `json:"serial_number"`
	SenderID     string `json:"sender_id"`
	ReplyToRef   string `json:"reply_to_ref"`
	ReplyToQuote string `json:"reply_to_quote"`
}

// PartialLabel is an untrusted, possibly empty subset of label fields as
// returned by the model. Unknown keys are ignored during decoding; missing
// fields stay nil and fall through to schema defaults.
type PartialLabel struct {
	Polarity         *float64 `json:"polarity"`
	EmotionPrimary   *string  `json:"emotion_primary"`
	EmotionSummary   *string  `json:"emotion_summary"`
	StressScore      *float64 `json:"stress_score"`
	UncertaintyScore *float64 `json:"uncertainty_score"`
	HelpRequest      *bool    `json:"help_request"`
	Helpfulness      *float64 `json:"helpfulness"`
	Gratitude        *bool    `json:"gratitude"`
	ToxicityScore    *float64 `json:"toxicity_score"`
	InfoDrop         *bool    `json:"info_drop"`
	EvidenceTerms    []string `json:"evidence_terms"`
}

// defaultLabelRecord returns the schema default set. EvidenceTerms starts as
// an empty (non-nil) slice so snapshots serialize it as [].
func defaultLabelRecord() LabelRecord {
	return LabelRecord{
		Polarity:         0,
		EmotionPrimary:   EmotionNeutralInfo,
		EmotionSummary:   "",
		StressScore:      0,
		UncertaintyScore: 0,
		HelpRequest:      false,
		Helpfulness:      0,
		Gratitude:        false,
		ToxicityScore:    0,
		InfoDrop:         false,
		ReactionSent:     nil,
		EvidenceTerms:    []string{},
	}
}

// overlay applies the fields the model actually produced on top of the
// defaults. Numeric values are clamped again at the end of ApplyHeuristics,
// so raw model values pass through here untouched.
func (r *LabelRecord) overlay(p PartialLabel) {
	if p.Polarity != nil {
		r.Polarity = *p.Polarity
	}
	if p.EmotionPrimary != nil {
		r.EmotionPrimary = *p.EmotionPrimary
	}
	if p.EmotionSummary != nil {
		r.EmotionSummary = *p.EmotionSummary
	}
	if p.StressScore != nil {
		r.StressScore = *p.StressScore
	}
	if p.UncertaintyScore != nil {
		r.UncertaintyScore = *p.UncertaintyScore
	}
	if p.HelpRequest != nil {
		r.HelpRequest = *p.HelpRequest
	}
	if p.Helpfulness != nil {
		r.Helpfulness = *p.Helpfulness
	}
	if p.Gratitude != nil {
		r.Gratitude = *p.Gratitude
	}
	if p.ToxicityScore != nil {
		r.ToxicityScore = *p.ToxicityScore
	}
	if p.InfoDrop != nil {
		r.InfoDrop = *p.InfoDrop
	}
	if len(p.EvidenceTerms) > 0 {
		r.EvidenceTerms = append([]string(nil), p.EvidenceTerms...)
	}
}

// attachProvenance copies the identifying fields from the source message.
func (r *LabelRecord) attachProvenance(msg Message) {
	r.MessageID = msg.MessageID
	r.Timestamp = msg.Datetime
	r.Body = msg.Body
	r.SerialNumber = msg.SerialNumber
	r.SenderID = msg.Sender.Phone
	if msg.ReplyTo != nil {
		r.ReplyToRef = msg.ReplyTo.Ref
		r.ReplyToQuote = msg.ReplyTo.Body
	} else {
		r.ReplyToRef = ""
		r.ReplyToQuote = ""
	}
}
