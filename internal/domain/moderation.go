package domain

import (
	"fmt"
	"time"
)

// Category is one of the classifier's moderation categories, keyed by the
// classifier's wire name.
type Category string

const (
	CategoryHarassment            Category = "harassment"
	CategoryHarassmentThreatening Category = "harassment/threatening"
	CategoryHate                  Category = "hate"
	CategoryHateThreatening       Category = "hate/threatening"
	CategorySelfHarm              Category = "self-harm"
	CategorySelfHarmInstructions  Category = "self-harm/instructions"
	CategorySelfHarmIntent        Category = "self-harm/intent"
	CategorySexual                Category = "sexual"
	CategorySexualMinors          Category = "sexual/minors"
	CategoryViolence              Category = "violence"
	CategoryViolenceGraphic       Category = "violence/graphic"
)

// Categories lists the closed set of categories the classifier must score.
var Categories = []Category{
	CategoryHarassment,
	CategoryHarassmentThreatening,
	CategoryHate,
	CategoryHateThreatening,
	CategorySelfHarm,
	CategorySelfHarmInstructions,
	CategorySelfHarmIntent,
	CategorySexual,
	CategorySexualMinors,
	CategoryViolence,
	CategoryViolenceGraphic,
}

// CategoryScores holds one classifier confidence in [0, 1] per category.
type CategoryScores map[Category]float64

// Missing returns the categories absent from s.
func (s CategoryScores) Missing() []Category {
	var out []Category
	for _, c := range Categories {
		if _, ok := s[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

type PunishmentKind string

const (
	PunishmentNone    PunishmentKind = "none"
	PunishmentWarn    PunishmentKind = "warn"
	PunishmentDelete  PunishmentKind = "delete"
	PunishmentTimeout PunishmentKind = "timeout"
	PunishmentBan     PunishmentKind = "ban"
)

// Punishment is the action chosen for a flagged message. Duration is only set
// for timeouts.
type Punishment struct {
	Kind     PunishmentKind
	Duration time.Duration
}

func Timeout(d time.Duration) Punishment {
	return Punishment{Kind: PunishmentTimeout, Duration: d}
}

func (p Punishment) String() string {
	if p.Kind == "" {
		return string(PunishmentNone)
	}
	if p.Kind == PunishmentTimeout {
		return fmt.Sprintf("timeout(%ds)", int(p.Duration.Seconds()))
	}
	return string(p.Kind)
}

// ModerationVerdict is the decision taken for one message.
type ModerationVerdict struct {
	Flagged    bool
	Category   Category
	Score      float64
	Punishment Punishment
}
