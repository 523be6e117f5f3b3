package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"devlink-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestEmailNotifierSendsToRecipient(t *testing.T) {
	ses := &fakeSES{}
	users := NewUserService(testUsers(), nil, nil, "secret")
	n := NewEmailNotifier(ses, "noreply@devlink.app", users)

	require.NoError(t, n.Notify(context.Background(), "bob", "Hello", "Body"))
	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, "noreply@devlink.app", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"bob@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Body", aws.ToString(in.Content.Simple.Body.Text.Data))
}

func TestEmailNotifierErrors(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	users := NewUserService(testUsers(), nil, nil, "secret")
	n := NewEmailNotifier(ses, "noreply@devlink.app", users)

	assert.Error(t, n.Notify(context.Background(), "bob", "s", "b"))
	assert.Error(t, n.Notify(context.Background(), "nobody", "s", "b"))
}

func TestPushNotifier(t *testing.T) {
	deviceToken := "device-1"
	store := testUsers()
	store.Update("bob", func(u *models.User) { u.PushToken = &deviceToken })
	users := NewUserService(store, nil, nil, "secret")

	var pushed []*apns2.Notification
	n := &PushNotifier{
		topic:  "app.devlink",
		lookup: users,
		push: func(_ context.Context, note *apns2.Notification) (*apns2.Response, error) {
			pushed = append(pushed, note)
			return &apns2.Response{StatusCode: http.StatusOK}, nil
		},
	}

	require.NoError(t, n.Notify(context.Background(), "bob", "Hi", "there"))
	require.NoError(t, n.Notify(context.Background(), "alice", "Hi", "there"), "users without a device are skipped")
	require.Len(t, pushed, 1)
	assert.Equal(t, "device-1", pushed[0].DeviceToken)
	assert.Equal(t, "app.devlink", pushed[0].Topic)

	n.push = func(context.Context, *apns2.Notification) (*apns2.Response, error) {
		return &apns2.Response{StatusCode: http.StatusGone, Reason: "Unregistered"}, nil
	}
	assert.Error(t, n.Notify(context.Background(), "bob", "Hi", "there"))
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := newFakeNotifier()
	failing := newFakeNotifier()
	failing.err = assert.AnError

	err := NewMultiNotifier(ok, failing).Notify(context.Background(), "bob", "s", "b")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, ok.all(), 1)
	assert.Len(t, failing.all(), 1)

	assert.NoError(t, NewMultiNotifier().Notify(context.Background(), "bob", "s", "b"))
}

func TestNotifyAsyncNilNotifier(t *testing.T) {
	NotifyAsync(nil, "bob", "s", "b")
	var n Notifier
	NotifyAsync(n, "bob", "s", "b")
}
