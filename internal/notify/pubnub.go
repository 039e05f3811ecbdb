package notify

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubNotifier publishes to per-user channels ("user-{chat id}"); the
// chat front-end subscribes to its user's channel and renders whatever
// arrives.
type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(cfg *PubNubConfig) *PubNubNotifier {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubNotifier{pn: pubnub.NewPubNub(pnConfig)}
}

func (n *PubNubNotifier) SendMessage(ctx context.Context, chatUserID, text string) error {
	return n.publish(ctx, chatUserID, map[string]any{
		"type": "message",
		"text": text,
	})
}

func (n *PubNubNotifier) SendTicket(ctx context.Context, chatUserID, caption, qrPayload string) error {
	return n.publish(ctx, chatUserID, map[string]any{
		"type":       "ticket",
		"caption":    caption,
		"qr_payload": qrPayload,
	})
}

func (n *PubNubNotifier) publish(_ context.Context, chatUserID string, message map[string]any) error {
	channel := fmt.Sprintf("user-%s", chatUserID)
	_, _, err := n.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("notify: pubnub publish to %s: %w", channel, err)
	}
	return nil
}

func (n *PubNubNotifier) Close(_ context.Context) error {
	n.pn.UnsubscribeAll()
	return nil
}
