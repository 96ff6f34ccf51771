// Package telegram pushes moderation-relevant events to an admin chat via
// the Telegram Bot API. The moderation workflow itself lives elsewhere;
// this is only its ingress bell.
package telegram

import (
	"fmt"
	"log"

	"heartline/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends report notifications to a fixed admin chat.
type Notifier struct {
	BotAPI      *tgbotapi.BotAPI
	AdminChatID int64
}

// NewNotifier authorizes the bot. Returns an error when the token is
// rejected by Telegram.
func NewNotifier(token string, adminChatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("Report notifier authorized on account %s", bot.Self.UserName)

	return &Notifier{BotAPI: bot, AdminChatID: adminChatID}, nil
}

// NotifyReport announces a new abuse report in the admin chat. Best effort:
// a delivery failure is logged, never surfaced to the reporter.
func (n *Notifier) NotifyReport(report *models.Report) {
	if n == nil || n.BotAPI == nil {
		return
	}

	text := fmt.Sprintf(
		"New report #%d\nReason: %s\nReported user: %s\nSession: %s\n\n%s",
		report.ID, report.Reason, report.ReportedUserID, report.SessionID, report.Description,
	)
	msg := tgbotapi.NewMessage(n.AdminChatID, text)
	if _, err := n.BotAPI.Send(msg); err != nil {
		log.Printf("ERROR: Failed to notify admins of report %d: %v", report.ID, err)
	}
}
