package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const notifyTimeout = 10 * time.Second

// Notifier delivers an out-of-band message to a user
type Notifier interface {
	Notify(ctx context.Context, recipientID, subject, body string) error
}

// ContactLookup resolves delivery addresses for a user
type ContactLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// NotifyAsync sends a notification on its own goroutine. Failures are logged only.
func NotifyAsync(n Notifier, recipientID, subject, body string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, recipientID, subject, body); err != nil {
			log.Warn().Err(err).Str("user_id", recipientID).Msg("Failed to deliver notification")
		}
	}()
}

// MultiNotifier fans a notification out to every configured channel
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify calls every channel and joins their errors
func (m *MultiNotifier) Notify(ctx context.Context, recipientID, subject, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, recipientID, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailSender is the subset of the SES v2 client used for email
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailNotifier sends plain-text email through SES
type EmailNotifier struct {
	ses    EmailSender
	from   string
	lookup ContactLookup
}

// NewEmailNotifier creates an SES email notifier
func NewEmailNotifier(ses EmailSender, from string, lookup ContactLookup) *EmailNotifier {
	return &EmailNotifier{ses: ses, from: from, lookup: lookup}
}

// Notify emails the recipient. Users without an address are skipped.
func (n *EmailNotifier) Notify(ctx context.Context, recipientID, subject, body string) error {
	user, err := n.lookup.GetUser(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if user.Email == "" {
		return nil
	}

	_, err = n.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{user.Email}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Debug().Str("user_id", recipientID).Str("subject", subject).Msg("Email sent")
	return nil
}

type pushFunc func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error)

// PushNotifier sends alerts through APNs
type PushNotifier struct {
	push   pushFunc
	topic  string
	lookup ContactLookup
}

// NewPushNotifier creates an APNs notifier authenticated with a .p8 signing key
func NewPushNotifier(keyFile, keyID, teamID, topic string, production bool, lookup ContactLookup) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{
		push: func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error) {
			return client.PushWithContext(ctx, n)
		},
		topic:  topic,
		lookup: lookup,
	}, nil
}

// Notify pushes an alert. Users without a registered device are skipped.
func (n *PushNotifier) Notify(ctx context.Context, recipientID, subject, body string) error {
	user, err := n.lookup.GetUser(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return nil
	}

	res, err := n.push(ctx, &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       n.topic,
		Payload:     payload.NewPayload().AlertTitle(subject).AlertBody(body).Sound("default"),
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
