package models

import (
	"time"

	"gorm.io/gorm"
)

// Flashcard represents an individual flashcard.
// A card belongs to exactly one set, which belongs to exactly one user;
// the scheduling columns are only ever written by the review flow.
type Flashcard struct {
	gorm.Model
	Question string `gorm:"not null;size:500"`
	Answer   string `gorm:"not null;size:1000"`
	PublicID string `gorm:"size:100;uniqueIndex"`

	SetID        uint         `gorm:"not null;index"`
	FlashcardSet FlashcardSet `gorm:"foreignKey:SetID" json:"-"`

	// Spaced-repetition state. A new card has interval 0 and is due at
	// creation time.
	EaseFactor     float64    `gorm:"not null;default:2.5"`
	IntervalDays   int        `gorm:"not null;default:0"`
	Repetitions    int        `gorm:"not null;default:0"`
	DueAt          time.Time  `gorm:"not null;index"`
	LastReviewedAt *time.Time `gorm:"default:null"`
}
