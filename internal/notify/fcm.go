package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Devices remembers the push tokens each owner has registered.
type Devices struct {
	mu     sync.RWMutex
	tokens map[string][]DeviceToken
}

func NewDevices() *Devices {
	return &Devices{tokens: make(map[string][]DeviceToken)}
}

// Register adds or refreshes a token. Re-registering an existing token
// updates its platform.
func (d *Devices) Register(ownerID string, t DeviceToken) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.tokens[ownerID]
	for i := range list {
		if list[i].Token == t.Token {
			list[i].Platform = t.Platform
			return
		}
	}
	d.tokens[ownerID] = append(list, t)
}

func (d *Devices) Tokens(ownerID string) []DeviceToken {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DeviceToken, len(d.tokens[ownerID]))
	copy(out, d.tokens[ownerID])
	return out
}

// Sender is the slice of the FCM client used here.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier pushes notices to the owner's registered Android devices.
type FCMNotifier struct {
	client  Sender
	devices *Devices
	title   string
}

// NewFCMNotifier reads credentials from the base64 FCM_SERVICE_ACCOUNT_JSON
// value when set, otherwise from credentialsFile.
func NewFCMNotifier(ctx context.Context, encodedCreds, credentialsFile string, devices *Devices) (*FCMNotifier, error) {
	var opt option.ClientOption

	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("FCM: initializing from FCM_SERVICE_ACCOUNT_JSON")
	} else {
		if credentialsFile == "" {
			return nil, errors.New("no firebase credentials configured")
		}
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s", credentialsFile)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		log.Printf("FCM: initializing from local file: %s", credentialsFile)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return NewFCMNotifierWithSender(client, devices), nil
}

func NewFCMNotifierWithSender(client Sender, devices *Devices) *FCMNotifier {
	return &FCMNotifier{client: client, devices: devices, title: "Drink log"}
}

// Notify sends one message per token; the batch endpoint is not used. The
// call fails only when every send fails.
func (f *FCMNotifier) Notify(ctx context.Context, ownerID string, n Notice) error {
	var tokens []string
	for _, t := range f.devices.Tokens(ownerID) {
		if t.Platform == "android" || t.Platform == "" {
			tokens = append(tokens, t.Token)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	successCount, failureCount := 0, 0
	for _, token := range tokens {
		message := &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: f.title,
				Body:  n.Message,
			},
			Data: map[string]string{"level": string(n.Level)},
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
			},
		}

		if _, err := f.client.Send(ctx, message); err != nil {
			log.Printf("FCM: failed to send to token %s: %v", token, err)
			failureCount++
		} else {
			successCount++
		}
	}

	log.Printf("FCM: sent %d messages, %d failed", successCount, failureCount)
	if successCount == 0 {
		return errors.New("all push notifications failed")
	}
	return nil
}
