package annotate

import "regexp"

// Reaction-nudge and toxicity constants. Empirically chosen; kept as named
// constants rather than derived values.
const (
	reactionBumpWeight = 0.1
	reactionBumpLimit  = 0.15
	toxLexiconScore    = 0.5
	toxSymbolScore     = 0.2
)

var emojiPositive = makeEmojiSet(
	// Happy / affection / approval
	"😀", "😃", "😄", "😁", "😆", "😅", "😂", "🤣", "🥲", "☺️", "😊", "😇",
	"🙂", "😉", "😌", "😍", "🥰", "😘", "😗", "😙", "😚", "😋", "😎", "🤩", "🥳",
	// Playful / silly
	"😛", "😝", "😜", "🤪",
	// Hugs / salute / support
	"🤗", "🫡",
	// Money / cowboy good-vibes
	"🤑", "🤠",
	// Cats
	"😺", "😸", "😹", "😻", "😽",
	// Hearts & love cluster
	"❤️", "🩷", "🧡", "💛", "💚", "💙", "🩵", "💜", "🤍", "🤎", "💖", "💘",
	"💝", "💗", "💓", "💕", "💞", "❣️", "💟", "❤️‍🔥", "❤️‍🩹",
	// Gestures: good / celebrate
	"👌", "✌️", "🤞", "🫰", "🤟", "🤘", "👍", "👏", "🫶", "🙌", "👐", "🤝", "🙏",
	// Party & celebration
	"🎉", "🎊", "🥂", "🍾", "🏆", "💯", "✅", "✔️",
)

var emojiNegative = makeEmojiSet(
	// Dislike / anger / sadness / fear / disgust
	"😒", "😞", "😔", "😟", "😕", "🙁", "☹️", "😣", "😖", "😫", "😩", "🥺",
	"😢", "😭", "😤", "😠", "😡", "🤬", "🥵", "🥶", "😱", "😨", "😰", "😥",
	"😓", "🤥", "🙄", "😬",
	// Ill / woozy / nausea
	"🥴", "🤢", "🤮", "🤧",
	// Commonly negative connotation
	"😈", "👿", "👹", "👺", "🤡", "💩", "💀", "☠️",
	// Cats
	"🙀", "😿", "😾",
	// Explicit negative symbols
	"💔", "🚫", "⛔️", "🛑", "❌", "❎", "🔞", "🚭", "📵", "☣️", "☢️", "⚠️",
	// Thumbs down / middle finger
	"👎", "🖕",
)

var thanksTokensHE = []string{"תודה", "תודה רבה", "תודה לכולם", "תודהה", "תודההה"}

var helpTokensHE = []string{
	"עזרה",
	"יכול לעזור",
	"יכולה לעזור",
	"אשמח לעזרה",
	"מישהו יודע",
	"מישהי יודעת",
	"מישהו יכול",
	"מישהי יכולה",
}

var infoTokensHE = []string{
	"הודיעה",
	"פורום החדשות",
	"קישור",
	"מודל",
	"מבחן",
	"קוויז",
	"הגשה",
	"סילבוס",
}

var stressTokensHE = []string{
	"דחוף",
	"דחופה",
	"לחוץ",
	"לחוצה",
	"נתקע",
	"נתקעה",
	"לא עובד",
	"לא עובדת",
	"תקוע",
}

var humorTokensHE = []string{"😂", "חח", "חחח", "חחחח", "😅"}

var thanksTokensEN = []string{"thanks", "thank you", "thx", "ty"}

var helpTokensEN = []string{
	"help",
	"anyone knows",
	"can someone",
	"could someone",
	"pls",
	"please",
}

var infoTokensEN = []string{"link", "deadline", "quiz", "assignment", "syllabus"}

var stressTokensEN = []string{"urgent", "stuck", "not working", "blocked"}

var humorTokensEN = []string{"lol", "lmao", "haha", "😂", "😅"}

// Minimal toxicity lexicon; a hit scores toxLexiconScore, a negative symbol
// alone scores toxSymbolScore.
var toxTokensHE = []string{"מפגר", "דפוק", "טיפש", "סתום", "חרא", "מנייאק"}

var toxTokensEN = []string{"idiot", "stupid", "dumb", "moron", "wtf", "bs", "shit", "asshole", "fuck"}

var toxSymbols = []string{"👎", "🤬", "💢"}

var gratitudeEmojis = []string{"❤️", "🙏"}

// anchorRe matches concrete course artifacts: exercise/question numbers,
// quiz numbers, and true/false tokens.
var anchorRe = regexp.MustCompile(`(?i)(?:שאלה|תרגיל)\s*\d+|quiz\s*\d+|Q\s*\d+|True|False`)

// jsonArrayRe extracts the terminal JSON array from model output; the model
// may prepend commentary, but the array must be the last token.
var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]\s*$`)

func makeEmojiSet(emojis ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(emojis))
	for _, e := range emojis {
		set[e] = struct{}{}
	}
	return set
}
