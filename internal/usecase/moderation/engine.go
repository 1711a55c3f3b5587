// Package moderation turns classifier scores into a verdict and punishment.
package moderation

import (
	"math"
	"time"

	"berryBot/internal/domain"
)

// Policy holds the fixed per-category tables the engine decides with.
type Policy struct {
	Thresholds  map[domain.Category]float64
	Severity    map[domain.Category]int
	Punishments map[domain.Category]domain.Punishment
}

// DefaultPolicy returns the bot's moderation tables. Lower severity ranks are
// more severe.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: map[domain.Category]float64{
			domain.CategoryHarassment:            0.95,
			domain.CategoryHarassmentThreatening: 0.97,
			domain.CategoryHate:                  0.55,
			domain.CategoryHateThreatening:       0.96,
			domain.CategorySelfHarm:              0.98,
			domain.CategorySelfHarmInstructions:  0.97,
			domain.CategorySelfHarmIntent:        0.95,
			domain.CategorySexual:                0.88,
			domain.CategorySexualMinors:          0.50,
			domain.CategoryViolence:              0.95,
			domain.CategoryViolenceGraphic:       0.99,
		},
		Severity: map[domain.Category]int{
			domain.CategorySexualMinors:          1,
			domain.CategoryHateThreatening:       2,
			domain.CategoryHarassmentThreatening: 3,
			domain.CategorySelfHarmIntent:        4,
			domain.CategorySelfHarmInstructions:  5,
			domain.CategoryViolenceGraphic:       6,
			domain.CategorySelfHarm:              7,
			domain.CategoryViolence:              8,
			domain.CategoryHate:                  9,
			domain.CategorySexual:                10,
			domain.CategoryHarassment:            11,
		},
		Punishments: map[domain.Category]domain.Punishment{
			domain.CategoryHarassment:            {Kind: domain.PunishmentWarn},
			domain.CategoryHarassmentThreatening: {Kind: domain.PunishmentBan},
			domain.CategoryHate:                  domain.Timeout(60 * time.Second),
			domain.CategoryHateThreatening:       {Kind: domain.PunishmentBan},
			domain.CategorySelfHarm:              {Kind: domain.PunishmentDelete},
			domain.CategorySelfHarmInstructions:  {Kind: domain.PunishmentDelete},
			domain.CategorySelfHarmIntent:        domain.Timeout(120 * time.Second),
			domain.CategorySexual:                {Kind: domain.PunishmentDelete},
			domain.CategorySexualMinors:          {Kind: domain.PunishmentBan},
			domain.CategoryViolence:              domain.Timeout(30 * time.Second),
			domain.CategoryViolenceGraphic:       {Kind: domain.PunishmentDelete},
		},
	}
}

// Engine is stateless; Decide depends only on the scores and the policy.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Decide flags the message when any category's score, rounded to three
// decimals, meets its threshold. Among violated categories the one with the
// lowest severity rank wins regardless of score. Missing scores count as 0.
func (e *Engine) Decide(scores domain.CategoryScores) domain.ModerationVerdict {
	var (
		chosen domain.Category
		rank   = math.MaxInt
	)
	for _, category := range domain.Categories {
		threshold, ok := e.policy.Thresholds[category]
		if !ok {
			continue
		}
		if roundScore(scores[category]) < threshold {
			continue
		}
		r, ok := e.policy.Severity[category]
		if !ok {
			r = math.MaxInt - 1
		}
		if r < rank {
			chosen, rank = category, r
		}
	}

	if chosen == "" {
		return domain.ModerationVerdict{Punishment: domain.Punishment{Kind: domain.PunishmentNone}}
	}

	punishment, ok := e.policy.Punishments[chosen]
	if !ok {
		punishment = domain.Punishment{Kind: domain.PunishmentNone}
	}
	return domain.ModerationVerdict{
		Flagged:    true,
		Category:   chosen,
		Score:      scores[chosen],
		Punishment: punishment,
	}
}

func roundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}
