package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"heartline/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Storage is the persistence boundary consumed by the core. The core defines
// entity shapes only; this interface hides the engines behind them.
type Storage interface {
	// Users
	GetUserByID(id string) (*models.User, error)
	SaveUser(user *models.User) error
	FindListeners() ([]models.User, error)
	UpdateListenerAvailability(id, state string) error
	UpdateListenerRating(id string, rating float64) error
	IncrementListenerChats(id string) error
	SetUserActive(id string, active bool) error

	// Sessions
	SaveSession(session *models.ChatSession) error
	GetSessionByID(id string) (*models.ChatSession, error)
	FindActiveSessionByUser(userID string) (*models.ChatSession, error)
	FinalizeSession(sessionID, status, endedBy string) error
	ActiveSessions() ([]models.ChatSession, error)
	RecentPartnerIDs(userID string, since time.Time) ([]string, error)

	// Messages
	SaveMessage(msg *models.Message) error
	MessagesBySession(sessionID string, beforeSeq uint64, limit int, cutoff time.Time) ([]models.Message, error)
	MaxSeq(sessionID string) (uint64, error)
	PurgeExpiredMessages(cutoff time.Time) (int64, error)

	// Feedback and reports
	SaveFeedback(fb *models.Feedback) error
	FeedbackExists(sessionID, reviewerID string) (bool, error)
	AverageRating(revieweeID string) (float64, error)
	SaveReport(report *models.Report) error
	GetReportByID(id uint) (*models.Report, error)
	ResolveReport(id uint, resolution string) error

	// Redis-backed
	IsUserBanned(userID string) (bool, error)
	BanUser(userID string, d time.Duration) error
	UnbanUser(userID string) error
	PublishEvent(targetID string, ev models.Event) error
	EnqueueOutbox(userID string, payload []byte) error
	PeekOutbox(userID string) ([]string, error)
	ClearOutbox(userID string, n int64) error
	MirrorAvailability(listenerID, state string) error
}

// Service implements Storage over PostgreSQL (GORM) and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService constructor.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// GetUserByID loads a user row by its anonymous UUID.
func (s *Service) GetUserByID(id string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUser persists a user row.
func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// FindListeners returns every active user carrying the listener role. Used
// to seed the in-memory pool at boot.
func (s *Service) FindListeners() ([]models.User, error) {
	var listeners []models.User
	err := s.DB.
		Where("is_active = ?", true).
		Where("? = ANY(roles)", models.RoleListener).
		Find(&listeners).Error
	if err != nil {
		log.Printf("ERROR: Failed to load listeners: %v", err)
		return nil, err
	}
	return listeners, nil
}

// UpdateListenerAvailability persists a listener's availability state.
func (s *Service) UpdateListenerAvailability(id, state string) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", id).
		Update("listener_availability", state).Error
}

// UpdateListenerRating persists the recalculated rolling average.
func (s *Service) UpdateListenerRating(id string, rating float64) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", id).
		Update("listener_rating", rating).Error
}

// IncrementListenerChats bumps the completed-chat counter.
func (s *Service) IncrementListenerChats(id string) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", id).
		Update("listener_total_chats", gorm.Expr("listener_total_chats + 1")).Error
}

// SetUserActive flips the ban flag on the user row.
func (s *Service) SetUserActive(id string, active bool) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// SaveSession persists a chat session.
func (s *Service) SaveSession(session *models.ChatSession) error {
	return s.DB.Save(session).Error
}

// GetSessionByID loads a session row.
func (s *Service) GetSessionByID(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.First(&session, "session_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Printf("ERROR: Failed to get session %s: %v", id, err)
		return nil, err
	}
	return &session, nil
}

// FindActiveSessionByUser returns the user's non-terminal session, or
// ErrNotFound when there is none.
func (s *Service) FindActiveSessionByUser(userID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.
		Where("status IN ?", []string{models.SessionPending, models.SessionActive}).
		Where("sharer_id = ? OR listener_id = ?", userID, userID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FinalizeSession stamps a terminal status and ended_at on the session row.
func (s *Service) FinalizeSession(sessionID, status, endedBy string) error {
	return s.DB.Model(&models.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_by": endedBy,
			"ended_at": time.Now(),
		}).Error
}

// ActiveSessions returns every non-terminal session, for recovery at boot.
func (s *Service) ActiveSessions() ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := s.DB.
		Where("status IN ?", []string{models.SessionPending, models.SessionActive}).
		Find(&sessions).Error
	if err != nil {
		log.Printf("ERROR: Failed to load active sessions: %v", err)
		return nil, err
	}
	return sessions, nil
}

// RecentPartnerIDs returns the IDs of everyone the user shared a session
// with since the cutoff. The matcher excludes them from candidate sets.
func (s *Service) RecentPartnerIDs(userID string, since time.Time) ([]string, error) {
	var sessions []models.ChatSession
	err := s.DB.
		Where("started_at >= ?", since).
		Where("sharer_id = ? OR listener_id = ?", userID, userID).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(sessions))
	partners := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		peer := sess.PeerOf(userID)
		if peer == "" {
			continue
		}
		if _, ok := seen[peer]; !ok {
			seen[peer] = struct{}{}
			partners = append(partners, peer)
		}
	}
	return partners, nil
}
