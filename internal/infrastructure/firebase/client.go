// Package firebase delivers push notifications through Firebase Cloud
// Messaging. Clients subscribe to their per-user topic on login, so the
// backend never stores device tokens.
package firebase

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client implements connection.Notifier using FCM topic messaging.
type Client struct {
	msgClient *messaging.Client
}

// NewClient initializes a Firebase app and returns an FCM client.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient}, nil
}

// userTopic is the topic each client subscribes to for its own user.
func userTopic(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// Notify sends a push notification to all of the user's devices via their
// per-user topic.
func (c *Client) Notify(ctx context.Context, userID int64, title, body string) error {
	msg := &messaging.Message{
		Topic: userTopic(userID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	}

	id, err := c.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	log.Printf("User %d: FCM message %s sent", userID, id)
	return nil
}
