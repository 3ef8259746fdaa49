package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/models"
	"github.com/studyowl/studyowl-api/report"
	"github.com/studyowl/studyowl-api/srs"
	"github.com/studyowl/studyowl-api/store"
	"github.com/studyowl/studyowl-api/study"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeReporter struct {
	lastTitles      string
	lastPerformance []report.Performance
	lastGradeLevel  string
	err             error
}

func (f *fakeReporter) GenerateSessionReport(ctx context.Context, setTitles string, performance []report.Performance, userGradeLevel string) (string, error) {
	f.lastTitles = setTitles
	f.lastPerformance = performance
	f.lastGradeLevel = userGradeLevel
	if f.err != nil {
		return "", f.err
	}
	return "You studied well today.", nil
}

type studyFixture struct {
	db       *gorm.DB
	handler  *StudyHandler
	reporter *fakeReporter
	user     models.User
}

func newStudyFixture(t *testing.T) *studyFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// One pooled connection, or each connection gets its own :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.FlashcardSet{}, &models.Flashcard{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	user := models.User{Auth0ID: "auth0|alice", Nickname: "alice", GradeLevel: "8th grade"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	reporter := &fakeReporter{}
	handler := NewStudyHandler(store.New(db), study.NewTracker(), reporter, srs.DefaultParams(), zap.NewNop())
	handler.now = func() time.Time { return testNow }

	return &studyFixture{db: db, handler: handler, reporter: reporter, user: user}
}

func (f *studyFixture) createSet(t *testing.T, title string) models.FlashcardSet {
	t.Helper()
	set := models.FlashcardSet{Title: title, UserID: f.user.ID, PublicID: "set-" + title}
	if err := f.db.Create(&set).Error; err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	return set
}

func (f *studyFixture) createCard(t *testing.T, setID uint, publicID string, dueAt time.Time) models.Flashcard {
	t.Helper()
	card := models.Flashcard{
		Question:   "Q " + publicID,
		Answer:     "A " + publicID,
		PublicID:   publicID,
		SetID:      setID,
		EaseFactor: 2.5,
		DueAt:      dueAt,
	}
	if err := f.db.Create(&card).Error; err != nil {
		t.Fatalf("failed to create card: %v", err)
	}
	return card
}

func (f *studyFixture) request(t *testing.T, method, target string, body interface{}, pathValues map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for key, value := range pathValues {
		req.SetPathValue(key, value)
	}
	return req.WithContext(middleware.WithUser(req.Context(), &f.user))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func TestStudyFlowEndToEnd(t *testing.T) {
	f := newStudyFixture(t)
	setA := f.createSet(t, "physics")
	setB := f.createSet(t, "history")
	f.createCard(t, setA.ID, "a-1", testNow)
	f.createCard(t, setA.ID, "a-2", testNow.Add(-time.Hour))
	f.createCard(t, setB.ID, "b-1", testNow.AddDate(0, 0, -1))
	f.createCard(t, setB.ID, "b-future", testNow.AddDate(0, 0, 4))

	// 1. Query due cards across both sets.
	rec := httptest.NewRecorder()
	f.handler.GetDueCards(rec, f.request(t, http.MethodPost, "/api/study/due",
		map[string]interface{}{"setIds": []string{setA.PublicID, setB.PublicID}}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("due: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["success"] != true {
		t.Fatalf("due: expected success, got %v", payload)
	}
	dueCards := payload["dueCards"].([]interface{})
	if len(dueCards) != 3 {
		t.Fatalf("expected 3 due cards, got %d", len(dueCards))
	}
	titles := payload["setTitles"].(map[string]interface{})
	if titles[setA.PublicID] != "physics" || titles[setB.PublicID] != "history" {
		t.Errorf("unexpected set titles: %v", titles)
	}
	sessionID, _ := payload["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("expected a session ID")
	}

	// 2. Review every card; the last review completes the session.
	for i, raw := range dueCards {
		card := raw.(map[string]interface{})
		rec := httptest.NewRecorder()
		f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
			map[string]interface{}{"quality": 2, "sessionId": sessionID},
			map[string]string{"cardID": card["id"].(string)}))
		if rec.Code != http.StatusOK {
			t.Fatalf("review %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
		result := decodeResponse(t, rec)
		wantComplete := i == len(dueCards)-1
		if result["sessionComplete"] != wantComplete {
			t.Errorf("review %d: sessionComplete = %v, want %v", i, result["sessionComplete"], wantComplete)
		}
	}

	// 3. A new card rated Good is scheduled one day out.
	var reviewed models.Flashcard
	if err := f.db.Where("public_id = ?", "a-1").First(&reviewed).Error; err != nil {
		t.Fatalf("failed to reload card: %v", err)
	}
	if reviewed.IntervalDays != 1 || reviewed.Repetitions != 1 {
		t.Errorf("expected interval 1 and 1 repetition, got %d and %d", reviewed.IntervalDays, reviewed.Repetitions)
	}
	if !reviewed.DueAt.Equal(testNow.AddDate(0, 0, 1)) {
		t.Errorf("expected due tomorrow, got %v", reviewed.DueAt)
	}
	if reviewed.LastReviewedAt == nil || !reviewed.LastReviewedAt.Equal(testNow) {
		t.Errorf("expected last_reviewed_at stamped, got %v", reviewed.LastReviewedAt)
	}

	// 4. Session report.
	rec = httptest.NewRecorder()
	f.handler.SessionReport(rec, f.request(t, http.MethodPost, "/api/study/sessions/x/report",
		map[string]interface{}{}, map[string]string{"sessionID": sessionID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeResponse(t, rec)
	if result["success"] != true || result["report"] != "You studied well today." {
		t.Errorf("unexpected report response: %v", result)
	}
	if len(f.reporter.lastPerformance) != 3 {
		t.Errorf("expected 3 performance entries, got %d", len(f.reporter.lastPerformance))
	}
	if f.reporter.lastGradeLevel != "8th grade" {
		t.Errorf("expected grade level from user profile, got %q", f.reporter.lastGradeLevel)
	}

	// 5. The session is gone afterwards.
	rec = httptest.NewRecorder()
	f.handler.SessionReport(rec, f.request(t, http.MethodPost, "/api/study/sessions/x/report",
		nil, map[string]string{"sessionID": sessionID}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for ended session, got %d", rec.Code)
	}
}

func TestGetDueCardsEmptyIsSuccess(t *testing.T) {
	f := newStudyFixture(t)
	set := f.createSet(t, "geology")
	f.createCard(t, set.ID, "future", testNow.AddDate(0, 0, 3))

	rec := httptest.NewRecorder()
	f.handler.GetDueCards(rec, f.request(t, http.MethodPost, "/api/study/due",
		map[string]interface{}{"setIds": []string{set.PublicID}}, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["success"] != true {
		t.Errorf("expected success, got %v", payload)
	}
	if cards := payload["dueCards"].([]interface{}); len(cards) != 0 {
		t.Errorf("expected no due cards, got %v", cards)
	}
	if _, hasSession := payload["sessionId"]; hasSession {
		t.Error("no session should be opened for an empty due set")
	}
}

func TestReviewCardRejectsInvalidQuality(t *testing.T) {
	f := newStudyFixture(t)
	set := f.createSet(t, "math")
	f.createCard(t, set.ID, "card-1", testNow)

	for _, quality := range []interface{}{-1, 4, nil} {
		body := map[string]interface{}{}
		if quality != nil {
			body["quality"] = quality
		}
		rec := httptest.NewRecorder()
		f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
			body, map[string]string{"cardID": "card-1"}))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("quality %v: expected 400, got %d", quality, rec.Code)
		}
	}

	// No state was touched by the rejected reviews.
	var card models.Flashcard
	if err := f.db.Where("public_id = ?", "card-1").First(&card).Error; err != nil {
		t.Fatalf("failed to reload card: %v", err)
	}
	if card.Repetitions != 0 || card.IntervalDays != 0 || card.LastReviewedAt != nil {
		t.Errorf("invalid quality mutated state: %+v", card)
	}
}

func TestReviewCardForeignCardIsNotFound(t *testing.T) {
	f := newStudyFixture(t)
	other := models.User{Auth0ID: "auth0|bob", Nickname: "bob"}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	set := models.FlashcardSet{Title: "secret", UserID: other.ID, PublicID: "set-secret"}
	if err := f.db.Create(&set).Error; err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	f.createCard(t, set.ID, "their-card", testNow)

	rec := httptest.NewRecorder()
	f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
		map[string]interface{}{"quality": 2}, map[string]string{"cardID": "their-card"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a foreign card, got %d", rec.Code)
	}
}

func TestSessionReportFailureIsSoft(t *testing.T) {
	f := newStudyFixture(t)
	f.reporter.err = errors.New("model overloaded")
	set := f.createSet(t, "biology")
	f.createCard(t, set.ID, "card-1", testNow)

	session, err := f.handler.Tracker.Start(map[string]string{set.PublicID: set.Title}, 1, testNow)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	rec := httptest.NewRecorder()
	f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
		map[string]interface{}{"quality": 3, "sessionId": session.ID},
		map[string]string{"cardID": "card-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.handler.SessionReport(rec, f.request(t, http.MethodPost, "/api/study/sessions/x/report",
		nil, map[string]string{"sessionID": session.ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected soft failure with 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["success"] != false {
		t.Errorf("expected success false, got %v", payload)
	}

	// The committed schedule update survives the report failure.
	var card models.Flashcard
	if err := f.db.Where("public_id = ?", "card-1").First(&card).Error; err != nil {
		t.Fatalf("failed to reload card: %v", err)
	}
	if card.Repetitions != 1 || card.IntervalDays != 1 {
		t.Errorf("report failure disturbed the schedule: %+v", card)
	}
}

func TestReviewWithStaleSessionStillPersists(t *testing.T) {
	f := newStudyFixture(t)
	set := f.createSet(t, "latin")
	f.createCard(t, set.ID, "card-1", testNow)

	rec := httptest.NewRecorder()
	f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
		map[string]interface{}{"quality": 2, "sessionId": "long-gone"},
		map[string]string{"cardID": "card-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var card models.Flashcard
	if err := f.db.Where("public_id = ?", "card-1").First(&card).Error; err != nil {
		t.Fatalf("failed to reload card: %v", err)
	}
	if card.Repetitions != 1 {
		t.Errorf("schedule update should not depend on the session: %+v", card)
	}
}

func TestDueCardsRequireSetIDs(t *testing.T) {
	f := newStudyFixture(t)

	rec := httptest.NewRecorder()
	f.handler.GetDueCards(rec, f.request(t, http.MethodPost, "/api/study/due",
		map[string]interface{}{}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing setIds, got %d", rec.Code)
	}
}

func TestScenarioLadderThroughHandler(t *testing.T) {
	// Drive one card through Good, Good, Easy, Again and check the persisted
	// schedule after each step.
	f := newStudyFixture(t)
	set := f.createSet(t, "chemistry")
	f.createCard(t, set.ID, "card-1", testNow)

	steps := []struct {
		quality      int
		wantInterval int
		wantReps     int
		wantEase     float64
	}{
		{2, 1, 1, 2.5},
		{2, 6, 2, 2.5},
		{3, 20, 3, 2.65},
		{0, 1, 0, 2.45},
	}

	for i, step := range steps {
		rec := httptest.NewRecorder()
		f.handler.ReviewCard(rec, f.request(t, http.MethodPost, "/api/study/cards/x/review",
			map[string]interface{}{"quality": step.quality},
			map[string]string{"cardID": "card-1"}))
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}

		var card models.Flashcard
		if err := f.db.Where("public_id = ?", "card-1").First(&card).Error; err != nil {
			t.Fatalf("step %d: failed to reload card: %v", i, err)
		}
		if card.IntervalDays != step.wantInterval {
			t.Errorf("step %d: interval = %d, want %d", i, card.IntervalDays, step.wantInterval)
		}
		if card.Repetitions != step.wantReps {
			t.Errorf("step %d: repetitions = %d, want %d", i, card.Repetitions, step.wantReps)
		}
		if diff := card.EaseFactor - step.wantEase; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("step %d: ease = %.4f, want %.4f", i, card.EaseFactor, step.wantEase)
		}
		if !card.DueAt.Equal(testNow.AddDate(0, 0, step.wantInterval)) {
			t.Errorf("step %d: due = %v, want %v", i, card.DueAt, testNow.AddDate(0, 0, step.wantInterval))
		}
	}
}
