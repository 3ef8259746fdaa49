// Package srs implements the spaced-repetition scheduling algorithm.
// It is a four-level variant of the classic SM-2 method: each review is
// rated Again/Hard/Good/Easy and the card's ease factor and interval are
// adjusted accordingly. The package is pure; persistence and clock live
// with the caller.
package srs

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Quality is the user's rating of a single recall attempt.
type Quality int

const (
	Again Quality = 0 // failed recall, resets progress
	Hard  Quality = 1
	Good  Quality = 2
	Easy  Quality = 3
)

// ErrInvalidQuality is returned when a rating outside {0,1,2,3} is supplied.
var ErrInvalidQuality = errors.New("quality must be 0 (Again), 1 (Hard), 2 (Good) or 3 (Easy)")

// State is the scheduling state of a single card.
type State struct {
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	DueAt          time.Time
	LastReviewedAt time.Time
}

// Params holds the tunable constants of the scheduler. The defaults
// reproduce the published test vectors; deployments may override them
// through configuration.
type Params struct {
	InitialEase        float64 `mapstructure:"initial_ease" validate:"gte=1"`
	EaseFloor          float64 `mapstructure:"ease_floor" validate:"gte=1"`
	LapseEasePenalty   float64 `mapstructure:"lapse_ease_penalty" validate:"gte=0"`
	HardEasePenalty    float64 `mapstructure:"hard_ease_penalty" validate:"gte=0"`
	HardIntervalFactor float64 `mapstructure:"hard_interval_factor" validate:"gte=1"`
	EasyBonus          float64 `mapstructure:"easy_bonus" validate:"gte=1"`
	EasyEaseReward     float64 `mapstructure:"easy_ease_reward" validate:"gte=0"`
	FirstInterval      int     `mapstructure:"first_interval" validate:"gte=1"`
	SecondInterval     int     `mapstructure:"second_interval" validate:"gte=1"`
}

// DefaultParams returns the standard scheduler constants.
func DefaultParams() Params {
	return Params{
		InitialEase:        2.5,
		EaseFloor:          1.3,
		LapseEasePenalty:   0.2,
		HardEasePenalty:    0.15,
		HardIntervalFactor: 1.2,
		EasyBonus:          1.3,
		EasyEaseReward:     0.15,
		FirstInterval:      1,
		SecondInterval:     6,
	}
}

// NewState returns the state of a freshly created card: never scheduled,
// due immediately.
func (p Params) NewState(now time.Time) State {
	return State{
		EaseFactor:   p.InitialEase,
		IntervalDays: 0,
		Repetitions:  0,
		DueAt:        now,
	}
}

// Advance computes the next scheduling state for a card given the rating of
// the review that just happened. It is pure and deterministic: the same
// state, quality and clock always produce the same result.
func (p Params) Advance(state State, quality Quality, now time.Time) (State, error) {
	if quality < Again || quality > Easy {
		return State{}, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	next := state
	next.LastReviewedAt = now

	switch quality {
	case Again:
		next.Repetitions = 0
		next.IntervalDays = 1
		next.EaseFactor = math.Max(p.EaseFloor, state.EaseFactor-p.LapseEasePenalty)

	case Hard:
		if state.Repetitions == 0 {
			next.IntervalDays = p.FirstInterval
		} else {
			next.IntervalDays = roundDays(float64(state.IntervalDays) * p.HardIntervalFactor)
		}
		next.EaseFactor = math.Max(p.EaseFloor, state.EaseFactor-p.HardEasePenalty)
		next.Repetitions = state.Repetitions + 1

	case Good:
		next.IntervalDays = p.graduate(state, 1.0)
		next.Repetitions = state.Repetitions + 1

	case Easy:
		next.IntervalDays = p.graduate(state, p.EasyBonus)
		next.EaseFactor = state.EaseFactor + p.EasyEaseReward
		next.Repetitions = state.Repetitions + 1
	}

	next.DueAt = now.AddDate(0, 0, next.IntervalDays)
	return next, nil
}

// graduate applies the graduation ladder: fixed short intervals for the
// first two successful reviews, ease-scaled growth afterwards. The bonus
// multiplier is applied before rounding so a single rounding step decides
// the final interval.
func (p Params) graduate(state State, bonus float64) int {
	switch {
	case state.Repetitions == 0:
		return roundDays(float64(p.FirstInterval) * bonus)
	case state.Repetitions == 1:
		return roundDays(float64(p.SecondInterval) * bonus)
	default:
		return roundDays(float64(state.IntervalDays) * state.EaseFactor * bonus)
	}
}

// roundDays rounds a fractional interval half-up to whole days, never
// below one day. Half-up (floor(x+0.5)) is the documented rounding rule;
// 19.5 days becomes 20.
func roundDays(days float64) int {
	rounded := int(math.Floor(days + 0.5))
	if rounded < 1 {
		return 1
	}
	return rounded
}
