package chathub_test

import (
	"time"

	"heartline/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetUserByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) FindListeners() ([]models.User, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) UpdateListenerAvailability(id, state string) error {
	args := m.Called(id, state)
	return args.Error(0)
}

func (m *MockStorage) UpdateListenerRating(id string, rating float64) error {
	args := m.Called(id, rating)
	return args.Error(0)
}

func (m *MockStorage) IncrementListenerChats(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStorage) SetUserActive(id string, active bool) error {
	args := m.Called(id, active)
	return args.Error(0)
}

func (m *MockStorage) SaveSession(session *models.ChatSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockStorage) GetSessionByID(id string) (*models.ChatSession, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockStorage) FindActiveSessionByUser(userID string) (*models.ChatSession, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockStorage) FinalizeSession(sessionID, status, endedBy string) error {
	args := m.Called(sessionID, status, endedBy)
	return args.Error(0)
}

func (m *MockStorage) ActiveSessions() ([]models.ChatSession, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatSession), args.Error(1)
}

func (m *MockStorage) RecentPartnerIDs(userID string, since time.Time) ([]string, error) {
	args := m.Called(userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) SaveMessage(msg *models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) MessagesBySession(sessionID string, beforeSeq uint64, limit int, cutoff time.Time) ([]models.Message, error) {
	args := m.Called(sessionID, beforeSeq, limit, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MaxSeq(sessionID string) (uint64, error) {
	args := m.Called(sessionID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockStorage) PurgeExpiredMessages(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveFeedback(fb *models.Feedback) error {
	args := m.Called(fb)
	return args.Error(0)
}

func (m *MockStorage) FeedbackExists(sessionID, reviewerID string) (bool, error) {
	args := m.Called(sessionID, reviewerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) AverageRating(revieweeID string) (float64, error) {
	args := m.Called(revieweeID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockStorage) SaveReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockStorage) GetReportByID(id uint) (*models.Report, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockStorage) ResolveReport(id uint, resolution string) error {
	args := m.Called(id, resolution)
	return args.Error(0)
}

func (m *MockStorage) IsUserBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) BanUser(userID string, d time.Duration) error {
	args := m.Called(userID, d)
	return args.Error(0)
}

func (m *MockStorage) UnbanUser(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) PublishEvent(targetID string, ev models.Event) error {
	args := m.Called(targetID, ev)
	return args.Error(0)
}

func (m *MockStorage) EnqueueOutbox(userID string, payload []byte) error {
	args := m.Called(userID, payload)
	return args.Error(0)
}

func (m *MockStorage) PeekOutbox(userID string) ([]string, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) ClearOutbox(userID string, n int64) error {
	args := m.Called(userID, n)
	return args.Error(0)
}

func (m *MockStorage) MirrorAvailability(listenerID, state string) error {
	args := m.Called(listenerID, state)
	return args.Error(0)
}
