// Package store owns the persisted scheduling state of flashcards and the
// selection of due cards across sets. Every query is scoped to the calling
// user: a card or set that exists but belongs to someone else is reported
// as not found, so callers cannot probe for other users' content.
package store

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/studyowl/studyowl-api/models"
	"github.com/studyowl/studyowl-api/srs"
)

// ErrNotFound covers both "does not exist" and "not owned by the caller".
var ErrNotFound = errors.New("card not found")

// Store reads and writes per-card scheduling state.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ownedCards scopes a query to flashcards inside sets owned by userID.
func (s *Store) ownedCards(userID uint) *gorm.DB {
	return s.db.Model(&models.Flashcard{}).
		Where("set_id IN (?)", s.db.Model(&models.FlashcardSet{}).Select("id").Where("user_id = ?", userID))
}

// GetCard returns the card with the given public ID, provided it belongs
// to userID.
func (s *Store) GetCard(cardID string, userID uint) (*models.Flashcard, error) {
	var card models.Flashcard
	err := s.ownedCards(userID).Where("public_id = ?", cardID).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load card %s: %w", cardID, err)
	}
	return &card, nil
}

// StateOf extracts the scheduling state from a persisted card.
func StateOf(card *models.Flashcard) srs.State {
	state := srs.State{
		EaseFactor:   card.EaseFactor,
		IntervalDays: card.IntervalDays,
		Repetitions:  card.Repetitions,
		DueAt:        card.DueAt,
	}
	if card.LastReviewedAt != nil {
		state.LastReviewedAt = *card.LastReviewedAt
	}
	return state
}

// GetState returns the scheduling state of the card with the given public ID,
// provided it belongs to userID.
func (s *Store) GetState(cardID string, userID uint) (srs.State, error) {
	card, err := s.GetCard(cardID, userID)
	if err != nil {
		return srs.State{}, err
	}
	return StateOf(card), nil
}

// UpdateState persists a complete scheduling state for the card. All columns
// are written in a single UPDATE so a review is one atomic row write;
// concurrent duplicate reviews of the same card resolve last-write-wins.
func (s *Store) UpdateState(cardID string, userID uint, state srs.State) error {
	result := s.ownedCards(userID).Where("public_id = ?", cardID).Updates(map[string]interface{}{
		"ease_factor":      state.EaseFactor,
		"interval_days":    state.IntervalDays,
		"repetitions":      state.Repetitions,
		"due_at":           state.DueAt,
		"last_reviewed_at": state.LastReviewedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update card %s: %w", cardID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DueCard is a card selected for review, tagged with its source set.
type DueCard struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	SetID    string `json:"setId"`
}

// DueCards returns the union of cards due at or before now across the given
// sets, in randomized order, together with a map of set public ID to title.
// Sets not owned by userID are silently excluded rather than failing the
// call, and an empty due set is a valid result, not an error.
func (s *Store) DueCards(setIDs []string, userID uint, now time.Time) ([]DueCard, map[string]string, error) {
	if len(setIDs) == 0 {
		return []DueCard{}, map[string]string{}, nil
	}

	var sets []models.FlashcardSet
	err := s.db.Where("public_id IN ? AND user_id = ?", setIDs, userID).Find(&sets).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sets: %w", err)
	}

	titles := make(map[string]string, len(sets))
	setByDBID := make(map[uint]string, len(sets))
	dbIDs := make([]uint, 0, len(sets))
	for _, set := range sets {
		titles[set.PublicID] = set.Title
		setByDBID[set.ID] = set.PublicID
		dbIDs = append(dbIDs, set.ID)
	}
	if len(dbIDs) == 0 {
		return []DueCard{}, titles, nil
	}

	var cards []models.Flashcard
	err = s.db.Where("set_id IN ? AND due_at <= ?", dbIDs, now).Find(&cards).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load due cards: %w", err)
	}

	due := make([]DueCard, 0, len(cards))
	for _, card := range cards {
		due = append(due, DueCard{
			ID:       card.PublicID,
			Question: card.Question,
			Answer:   card.Answer,
			SetID:    setByDBID[card.SetID],
		})
	}

	// Explicit shuffle over the materialized list so the study order never
	// depends on storage order.
	rand.Shuffle(len(due), func(i, j int) {
		due[i], due[j] = due[j], due[i]
	})

	return due, titles, nil
}

// TouchLastStudied stamps the sets involved in a study session. Best-effort
// bookkeeping; errors are returned for logging but carry no scheduling state.
func (s *Store) TouchLastStudied(setIDs []string, userID uint, now time.Time) error {
	if len(setIDs) == 0 {
		return nil
	}
	err := s.db.Model(&models.FlashcardSet{}).
		Where("public_id IN ? AND user_id = ?", setIDs, userID).
		Update("last_studied", now).Error
	if err != nil {
		return fmt.Errorf("failed to update last_studied: %w", err)
	}
	return nil
}
