package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// LoginEvent is emitted by the auth service when a session authenticates.
type LoginEvent struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
}

// CartMerger folds a session's cart into an account's cart.
type CartMerger interface {
	MergeCarts(ctx context.Context, sessionID, accountID string) error
}

// LoginListener merges carts when a login event arrives.
type LoginListener struct {
	subscriber Subscriber
	merger     CartMerger
	topic      string
	groupID    string
}

func NewLoginListener(subscriber Subscriber, merger CartMerger, topic, groupID string) *LoginListener {
	return &LoginListener{subscriber: subscriber, merger: merger, topic: topic, groupID: groupID}
}

// Run consumes login events until ctx is done.
func (l *LoginListener) Run(ctx context.Context) error {
	slog.Info("Login listener started", "topic", l.topic, "group", l.groupID)
	l.subscriber.Consume(ctx, l.topic, l.groupID, l.Handle)
	return nil
}

// Handle merges the carts named by one login event.
func (l *LoginListener) Handle(ctx context.Context, payload []byte) error {
	var event LoginEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal login event: %w", err)
	}
	if event.AccountID == "" || event.SessionID == "" {
		return errors.New("login event needs account_id and session_id")
	}

	if err := l.merger.MergeCarts(ctx, event.SessionID, event.AccountID); err != nil {
		return fmt.Errorf("failed to merge carts for account %s: %w", event.AccountID, err)
	}
	slog.Info("Merged carts on login", "account_id", event.AccountID)
	return nil
}
