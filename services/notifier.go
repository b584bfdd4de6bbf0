package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"kuji-system/utils"
)

// Notifier pushes realtime queue/turn/draw events to per-user PubNub
// channels. Publishes ride behind a circuit breaker: a misbehaving realtime
// provider must never slow down lock or draw requests, so failures are logged
// and dropped.
type Notifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	return &Notifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

// NotifyUser publishes a message to the user's private channel. Best effort.
func (n *Notifier) NotifyUser(ctx context.Context, userID string, message map[string]any) {
	if n == nil || n.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", userID)
	err := n.breaker.Execute(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("notify user failed", "user_id", userID, "type", message["type"], "error", err)
	}
}

// NotifyLottery publishes to the public per-lottery channel (board refreshes,
// sold out announcements).
func (n *Notifier) NotifyLottery(ctx context.Context, setID string, message map[string]any) {
	if n == nil || n.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("lottery-%s", setID)
	err := n.breaker.Execute(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("notify lottery failed", "lottery_set_id", setID, "type", message["type"], "error", err)
	}
}
