package domain

type FeedbackSignal string

const (
	FeedbackCopied          FeedbackSignal = "copied"
	FeedbackLongPressCopied FeedbackSignal = "long_press_copied"
	FeedbackCardIncluded    FeedbackSignal = "card_included"
	FeedbackCardCopied      FeedbackSignal = "card_copied"
	FeedbackViewed          FeedbackSignal = "viewed"
	FeedbackConfirmed       FeedbackSignal = "confirmed"
	FeedbackDismissed       FeedbackSignal = "dismissed"
)

func ValidFeedbackSignal(s string) bool {
	_, ok := FeedbackEffects[FeedbackSignal(s)]
	return ok
}

// CardSignal reports whether the signal applies to every entity in a card.
func (s FeedbackSignal) CardSignal() bool {
	return s == FeedbackCardIncluded || s == FeedbackCardCopied
}

// FeedbackEffect defines how a signal moves an entity's feedback delta.
type FeedbackEffect struct {
	Delta float64
	// AtViewCount, when set, applies Delta only on the view that reaches it.
	AtViewCount int
}

// FeedbackEffects maps signals to their effect on userFeedbackDelta.
var FeedbackEffects = map[FeedbackSignal]FeedbackEffect{
	FeedbackCopied:          {Delta: +0.15},
	FeedbackLongPressCopied: {Delta: +0.15},
	FeedbackCardIncluded:    {Delta: +0.20},
	FeedbackCardCopied:      {Delta: +0.10},
	FeedbackViewed:          {Delta: +0.05, AtViewCount: 3},
	FeedbackConfirmed:       {Delta: +0.25},
	FeedbackDismissed:       {Delta: -0.40},
}
