package notifications

import "context"

// Messenger delivers plain text to a chat
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendDraft(ctx context.Context, draft *Draft) error
	SendNotice(ctx context.Context, chatID int64, text string) error
}
