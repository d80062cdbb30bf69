// internal/database/db.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"discord-feedback-bot/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a prompt or response does not exist, or a
	// response does not belong to the referenced prompt.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable wraps every driver or I/O failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAlreadyFinalized is returned when a prompt is no longer active.
	ErrAlreadyFinalized = errors.New("prompt already finalized")
)

type DB struct {
	*gorm.DB
}

func NewDB(host, user, password, dbname string, port int) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return setup(gormDB)
}

// NewSQLiteDB opens a SQLite database at path. Pass ":memory:" for a
// throwaway database.
func NewSQLiteDB(path string) (*DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases alive.
	sqlDB.SetMaxOpenConns(1)

	if err := gormDB.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := gormDB.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, err
		}
	}

	return setup(gormDB)
}

func setup(gormDB *gorm.DB) (*DB, error) {
	if err := gormDB.AutoMigrate(
		&models.Prompt{},
		&models.Response{},
		&models.FeedbackEvent{},
		&models.TrainingPair{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{gormDB}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrap maps driver errors onto the package sentinels.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrStorageUnavailable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

func (db *DB) CreatePrompt(ctx context.Context, text, category, externalRef string) (uint, error) {
	prompt := &models.Prompt{
		Text:               text,
		Category:           category,
		ExternalMessageRef: externalRef,
		Status:             models.PromptActive,
	}
	if err := db.WithContext(ctx).Create(prompt).Error; err != nil {
		return 0, wrap(err)
	}
	return prompt.ID, nil
}

func (db *DB) SetPromptMessageRef(ctx context.Context, promptID uint, ref string) error {
	res := db.WithContext(ctx).Model(&models.Prompt{}).Where("id = ?", promptID).Update("external_message_ref", ref)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetPrompt(ctx context.Context, id uint) (*models.Prompt, error) {
	var prompt models.Prompt
	if err := db.WithContext(ctx).First(&prompt, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &prompt, nil
}

func (db *DB) CreateResponse(ctx context.Context, promptID uint, text, model string, temperature float32) (uint, error) {
	return db.createResponse(ctx, &models.Response{
		PromptID:    promptID,
		Text:        text,
		ModelName:   model,
		Temperature: temperature,
		Outcome:     models.OutcomeOK,
	})
}

// CreateFailedResponse records a candidate whose completion call failed. It
// is kept for diagnostics and never ranked.
func (db *DB) CreateFailedResponse(ctx context.Context, promptID uint, model string, temperature float32, reason string) (uint, error) {
	return db.createResponse(ctx, &models.Response{
		PromptID:      promptID,
		ModelName:     model,
		Temperature:   temperature,
		Outcome:       models.OutcomeFailed,
		FailureReason: reason,
	})
}

func (db *DB) createResponse(ctx context.Context, resp *models.Response) (uint, error) {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prompt models.Prompt
		if err := tx.Select("id").First(&prompt, resp.PromptID).Error; err != nil {
			return wrap(err)
		}
		return tx.Create(resp).Error
	})
	if err != nil {
		return 0, wrap(err)
	}
	return resp.ID, nil
}

func (db *DB) GetResponses(ctx context.Context, promptID uint) ([]models.Response, error) {
	var responses []models.Response
	err := db.WithContext(ctx).Where("prompt_id = ?", promptID).Order("id ASC").Find(&responses).Error
	return responses, wrap(err)
}

// AppendFeedback inserts one feedback row. There is no uniqueness constraint:
// the same user reacting twice produces two rows.
func (db *DB) AppendFeedback(ctx context.Context, promptID, responseID uint, userID, userName string, kind models.FeedbackKind, value string) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resp models.Response
		if err := tx.Select("id", "prompt_id").First(&resp, responseID).Error; err != nil {
			return wrap(err)
		}
		if resp.PromptID != promptID {
			return fmt.Errorf("%w: response %d belongs to prompt %d, not %d", ErrNotFound, responseID, resp.PromptID, promptID)
		}

		return tx.Create(&models.FeedbackEvent{
			PromptID:       promptID,
			ResponseID:     responseID,
			ExternalUserID: userID,
			UserName:       userName,
			Kind:           kind,
			Value:          value,
		}).Error
	})
	return wrap(err)
}

// RankedResponses returns the successful candidates of a prompt with their
// feedback counts, ordered by likes desc, dislikes asc, then creation order.
func (db *DB) RankedResponses(ctx context.Context, promptID uint) ([]models.RankedResponse, error) {
	var ranked []models.RankedResponse

	err := db.WithContext(ctx).
		Table("responses AS r").
		Select(`r.id AS response_id, r.text, r.model_name, r.temperature,
			COUNT(CASE WHEN f.kind = ? THEN 1 END) AS likes,
			COUNT(CASE WHEN f.kind = ? THEN 1 END) AS dislikes,
			COUNT(CASE WHEN f.kind = ? THEN 1 END) AS comments,
			COUNT(CASE WHEN f.kind = ? THEN 1 END) - COUNT(CASE WHEN f.kind = ? THEN 1 END) AS score`,
			models.FeedbackLike, models.FeedbackDislike, models.FeedbackComment,
			models.FeedbackLike, models.FeedbackDislike).
		Joins("LEFT JOIN feedback_events AS f ON f.response_id = r.id").
		Where("r.prompt_id = ? AND r.outcome = ?", promptID, models.OutcomeOK).
		Group("r.id, r.text, r.model_name, r.temperature").
		Order("likes DESC, dislikes ASC, r.id ASC").
		Scan(&ranked).Error
	if err != nil {
		return nil, wrap(err)
	}

	return ranked, nil
}

// SaveTrainingPair stores the pair and moves its prompt from active to closed
// in one transaction.
func (db *DB) SaveTrainingPair(ctx context.Context, pair *models.TrainingPair) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := finalize(tx, pair.PromptID, models.PromptClosed); err != nil {
			return err
		}
		return tx.Create(pair).Error
	})
	return wrap(err)
}

// ExpirePrompt moves an active prompt to expired without deriving a pair.
func (db *DB) ExpirePrompt(ctx context.Context, promptID uint) error {
	return wrap(finalize(db.WithContext(ctx), promptID, models.PromptExpired))
}

// finalize performs the only status transitions the store allows:
// active -> closed and active -> expired.
func finalize(tx *gorm.DB, promptID uint, to models.PromptStatus) error {
	res := tx.Model(&models.Prompt{}).
		Where("id = ? AND status = ?", promptID, models.PromptActive).
		Update("status", to)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Prompt{}).Where("id = ?", promptID).Count(&count).Error; err != nil {
		return wrap(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadyFinalized
}

func (db *DB) TrainingPairForPrompt(ctx context.Context, promptID uint) (*models.TrainingPair, error) {
	var pair models.TrainingPair
	if err := db.WithContext(ctx).Where("prompt_id = ?", promptID).First(&pair).Error; err != nil {
		return nil, wrap(err)
	}
	return &pair, nil
}

// ListTrainingPairs returns pairs most recent first. A limit <= 0 returns all.
func (db *DB) ListTrainingPairs(ctx context.Context, limit int) ([]models.TrainingPair, error) {
	var pairs []models.TrainingPair

	query := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&pairs).Error
	return pairs, wrap(err)
}

func (db *DB) ActivePromptsCreatedBefore(ctx context.Context, t time.Time) ([]models.Prompt, error) {
	var prompts []models.Prompt
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PromptActive, t).
		Order("id ASC").
		Find(&prompts).Error
	return prompts, wrap(err)
}

func (db *DB) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	q := db.WithContext(ctx)

	counts := []struct {
		model any
		dst   *int64
	}{
		{&models.Prompt{}, &stats.Prompts},
		{&models.Response{}, &stats.Responses},
		{&models.FeedbackEvent{}, &stats.Feedback},
		{&models.TrainingPair{}, &stats.TrainingPairs},
	}
	for _, c := range counts {
		if err := q.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, wrap(err)
		}
	}

	err := q.Model(&models.Prompt{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&stats.Categories).Error
	if err != nil {
		return nil, wrap(err)
	}

	return stats, nil
}
