package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier pushes order status updates to the per-order PubNub channel the
// web client subscribes to while waiting for the STK prompt to resolve. A nil
// Notifier drops everything.
type Notifier struct {
	pn *pubnub.PubNub
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	if pn == nil {
		return nil
	}
	return &Notifier{pn: pn}
}

func (n *Notifier) PublishOrderStatus(orderNumber, orderStatus, paymentStatus, message string) {
	if n == nil {
		return
	}

	channel := fmt.Sprintf("order-%s", orderNumber)
	payload := map[string]any{
		"order_number":   orderNumber,
		"status":         orderStatus,
		"payment_status": paymentStatus,
		"message":        message,
	}

	_, pnStatus, err := n.pn.Publish().
		Channel(channel).
		Message(payload).
		Execute()
	if err != nil {
		slog.Error("failed to publish order status", "channel", channel, "error", err)
		return
	}
	if pnStatus.Error != nil {
		slog.Error("pubnub publish rejected", "channel", channel, "statusCode", pnStatus.StatusCode)
	}
}
