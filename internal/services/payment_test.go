package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/models"
	"devlink-backend/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

type paymentFixture struct {
	svc      *PaymentService
	users    *memstore.Users
	payments *memstore.Payments
	orders   *fakeOrders
}

func newPaymentFixture() *paymentFixture {
	users := testUsers()
	payments := memstore.NewPayments(users)
	orders := &fakeOrders{}
	svc := NewPaymentService(payments, NewUserService(users, nil, nil, "secret"), orders, "rzp_test_key", "INR", testWebhookSecret)
	return &paymentFixture{svc: svc, users: users, payments: payments, orders: orders}
}

func (f *paymentFixture) payment(t *testing.T, orderID string) models.Payment {
	t.Helper()
	p, ok := f.payments.Get(orderID)
	require.True(t, ok)
	return p
}

func webhookBody(orderID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.%s","payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"status":%q}}}}`,
		status, orderID, status,
	))
}

func TestCreateIntent(t *testing.T) {
	f := newPaymentFixture()

	intent, err := f.svc.CreateIntent(context.Background(), "alice", models.TierGold)
	require.NoError(t, err)
	assert.Equal(t, int64(159900), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, models.PaymentCreated, intent.Status)
	assert.Equal(t, "rzp_test_key", intent.KeyID)
	assert.Equal(t, models.TierGold, intent.Notes.Tier)
	assert.Equal(t, "Alice", intent.Notes.FirstName)

	require.Len(t, f.orders.requests, 1)
	assert.Equal(t, "Gold", f.orders.requests[0].Notes["membershipType"])
	assert.Equal(t, models.PaymentCreated, f.payment(t, intent.OrderID).Status)
}

func TestCreateIntentRejectsUnknownTier(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.CreateIntent(context.Background(), "alice", "Platinum")
	assert.Equal(t, apperr.CodeInvalidTier, apperr.CodeOf(err))
	assert.Empty(t, f.orders.requests)
}

func TestCreateIntentProviderFailure(t *testing.T) {
	f := newPaymentFixture()
	f.orders.err = assert.AnError

	_, err := f.svc.CreateIntent(context.Background(), "alice", models.TierSilver)
	assert.Equal(t, apperr.KindDependency, apperr.KindOf(err))
	assert.Zero(t, f.payments.Len())
}

func TestReconcileWebhookScenario(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, "alice", models.TierSilver)
	require.NoError(t, err)

	body := webhookBody(intent.OrderID, "captured")
	sig := SignWebhookPayload(body, testWebhookSecret)

	res, err := f.svc.ReconcileWebhook(ctx, body, sig, "evt_1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.PaymentCaptured, res.Status)

	ent, err := f.svc.CheckEntitlement(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ent.IsPremium)
	assert.Equal(t, models.TierSilver, ent.Tier)

	res, err = f.svc.ReconcileWebhook(ctx, body, sig, "evt_1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Applied)

	ent, err = f.svc.CheckEntitlement(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ent.IsPremium)
}

func TestReconcileWebhookInvalidSignatureChangesNothing(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	intent, err := f.svc.CreateIntent(ctx, "alice", models.TierGold)
	require.NoError(t, err)

	body := webhookBody(intent.OrderID, "captured")
	for _, sig := range []string{"", "deadbeef", "not-hex", SignWebhookPayload(body, "other-secret")} {
		_, err := f.svc.ReconcileWebhook(ctx, body, sig, "evt")
		assert.ErrorIs(t, err, apperr.ErrInvalidSignature)
		assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
	}

	assert.Equal(t, models.PaymentCreated, f.payment(t, intent.OrderID).Status)
	assert.Zero(t, f.payments.Deliveries())
	ent, err := f.svc.CheckEntitlement(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ent.IsPremium)
}

func TestReconcileWebhookAcknowledgesUnusablePayload(t *testing.T) {
	f := newPaymentFixture()

	for _, body := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"event":"payment.captured","payload":{}}`),
		[]byte(`{"event":"settlement.processed","payload":{"settlement":{"entity":{"id":"setl_1","amount":1000}}}}`),
	} {
		res, err := f.svc.ReconcileWebhook(context.Background(), body, SignWebhookPayload(body, testWebhookSecret), "")
		require.NoError(t, err, string(body))
		assert.True(t, res.Ignored)
		assert.False(t, res.Applied)
		assert.NotEmpty(t, res.EventID)
	}
	assert.Zero(t, f.payments.Deliveries())
}

func TestReconcileWebhookUnsignedUnusablePayloadRejected(t *testing.T) {
	f := newPaymentFixture()
	_, err := f.svc.ReconcileWebhook(context.Background(), []byte(`not json`), "bad", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidSignature)
}

func TestReconcileWebhookUnknownOrder(t *testing.T) {
	f := newPaymentFixture()
	body := webhookBody("order_missing", "captured")

	_, err := f.svc.ReconcileWebhook(context.Background(), body, SignWebhookPayload(body, testWebhookSecret), "")
	assert.ErrorIs(t, err, apperr.ErrUnknownOrder)
}

func TestReconcileWebhookFailedIsTerminal(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	intent, err := f.svc.CreateIntent(ctx, "alice", models.TierGold)
	require.NoError(t, err)

	failed := webhookBody(intent.OrderID, "failed")
	res, err := f.svc.ReconcileWebhook(ctx, failed, SignWebhookPayload(failed, testWebhookSecret), "evt_f")
	require.NoError(t, err)
	assert.True(t, res.Applied)

	captured := webhookBody(intent.OrderID, "captured")
	res, err = f.svc.ReconcileWebhook(ctx, captured, SignWebhookPayload(captured, testWebhookSecret), "evt_c")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, models.PaymentFailed, res.Status)

	ent, err := f.svc.CheckEntitlement(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ent.IsPremium)
}

func TestReconcileWebhookNonTerminalStatusAcknowledged(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	intent, err := f.svc.CreateIntent(ctx, "alice", models.TierGold)
	require.NoError(t, err)

	body := webhookBody(intent.OrderID, "authorized")
	res, err := f.svc.ReconcileWebhook(ctx, body, SignWebhookPayload(body, testWebhookSecret), "")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.PaymentCreated, res.Status)
	assert.NotEmpty(t, res.EventID, "event id falls back to the payload hash")
}

func TestReconcileWebhookConcurrentReplaysApplyOnce(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()
	intent, err := f.svc.CreateIntent(ctx, "alice", models.TierGold)
	require.NoError(t, err)

	body := webhookBody(intent.OrderID, "captured")
	sig := SignWebhookPayload(body, testWebhookSecret)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ReconcileWebhook(ctx, body, sig, "evt_1")
			if assert.NoError(t, err) && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
}

func TestPriceOf(t *testing.T) {
	amount, ok := PriceOf(models.TierSilver)
	assert.True(t, ok)
	assert.Equal(t, int64(79900), amount)

	_, ok = PriceOf("Bronze")
	assert.False(t, ok)
}
