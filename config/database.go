package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/studyowl/studyowl-api/models"
)

var Database *gorm.DB

// Connect opens the database and migrates the schema.
func Connect(databaseURL string) (*gorm.DB, error) {
	var err error
	Database, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	err = Database.AutoMigrate(&models.User{}, &models.FlashcardSet{}, &models.Flashcard{})
	if err != nil {
		return nil, fmt.Errorf("failed to auto migrate database: %w", err)
	}

	return Database, nil
}
