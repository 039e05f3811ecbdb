// Package notify delivers messages to chat users. The actual chat
// front-end (menus, QR rendering) is an external collaborator; this
// package only pushes payloads at it.
package notify

import "context"

// Notifier sends to a single chat user. Implementations must be safe for
// concurrent use — the broadcast engine calls them from a worker pool.
type Notifier interface {
	// SendMessage delivers a plain text message.
	SendMessage(ctx context.Context, chatUserID, text string) error

	// SendTicket delivers a ticket caption together with the opaque QR
	// payload; the front-end renders the payload into an image.
	SendTicket(ctx context.Context, chatUserID, caption, qrPayload string) error

	Close(ctx context.Context) error
}
