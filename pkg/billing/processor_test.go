package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
)

// fakeTx tracks transaction lifecycle; query methods are never reached by the
// processor itself.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *fakeTx) Conn() *pgx.Conn { return nil }

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
	begun    bool
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	b.begun = true
	return b.tx, nil
}

type fakeProvider struct {
	evt billing.Event
	err error
}

func (p *fakeProvider) VerifyAndParse(ctx context.Context, payload []byte, signature string) (billing.Event, error) {
	return p.evt, p.err
}

type fakeClaimer struct {
	claimed   bool
	err       error
	eventID   string
	eventType string
}

func (c *fakeClaimer) Claim(ctx context.Context, tx ledger.DBTX, eventID, eventType string) (bool, error) {
	c.eventID = eventID
	c.eventType = eventType
	return c.claimed, c.err
}

type fakeInvalidator struct {
	calls [][2]string
}

func (i *fakeInvalidator) Invalidate(ctx context.Context, userID, productID string) {
	i.calls = append(i.calls, [2]string{userID, productID})
}

func checkoutEvent() billing.Event {
	return billing.CheckoutCompleted{
		Meta:      billing.Meta{ID: "evt_1", Type: billing.TypeCheckoutCompleted},
		UserID:    "user_1",
		ProductID: "prod_api",
		PlanID:    "price_pro",
	}
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path commits claim and mutation together", func(t *testing.T) {
		tx := &fakeTx{}
		claimer := &fakeClaimer{claimed: true}
		inv := &fakeInvalidator{}
		handled := false

		handlers := map[string]billing.Handler{
			"checkout_completed": func(ctx context.Context, tx pgx.Tx, evt billing.Event) error {
				handled = true
				return nil
			},
		}

		processor := billing.NewProcessor(&fakeProvider{evt: checkoutEvent()}, &fakeBeginner{tx: tx}, claimer, handlers,
			billing.WithInvalidator(inv))

		outcome, err := processor.Process(ctx, []byte(`{}`), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.Processed, outcome)
		assert.True(t, handled)
		assert.True(t, tx.committed)
		assert.False(t, tx.rolledBack)
		assert.Equal(t, "evt_1", claimer.eventID)
		require.Len(t, inv.calls, 1)
		assert.Equal(t, [2]string{"user_1", "prod_api"}, inv.calls[0])
	})

	t.Run("duplicate claim rolls back and reports success", func(t *testing.T) {
		tx := &fakeTx{}
		inv := &fakeInvalidator{}
		handlers := map[string]billing.Handler{
			"checkout_completed": func(ctx context.Context, tx pgx.Tx, evt billing.Event) error {
				t.Fatal("handler must not run for duplicates")
				return nil
			},
		}

		processor := billing.NewProcessor(&fakeProvider{evt: checkoutEvent()}, &fakeBeginner{tx: tx}, &fakeClaimer{claimed: false}, handlers,
			billing.WithInvalidator(inv))

		outcome, err := processor.Process(ctx, []byte(`{}`), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.Duplicate, outcome)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
		assert.Empty(t, inv.calls)
	})

	t.Run("handler failure rolls back claim with mutation", func(t *testing.T) {
		tx := &fakeTx{}
		inv := &fakeInvalidator{}
		handlerErr := errors.New("store down")
		handlers := map[string]billing.Handler{
			"checkout_completed": func(ctx context.Context, tx pgx.Tx, evt billing.Event) error {
				return handlerErr
			},
		}

		processor := billing.NewProcessor(&fakeProvider{evt: checkoutEvent()}, &fakeBeginner{tx: tx}, &fakeClaimer{claimed: true}, handlers,
			billing.WithInvalidator(inv))

		_, err := processor.Process(ctx, []byte(`{}`), "sig")
		require.ErrorIs(t, err, handlerErr)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
		assert.Empty(t, inv.calls)
	})

	t.Run("unrecognized event commits bare claim", func(t *testing.T) {
		tx := &fakeTx{}
		inv := &fakeInvalidator{}
		evt := billing.Unrecognized{Meta: billing.Meta{ID: "evt_9", Type: "customer.updated"}}

		processor := billing.NewProcessor(&fakeProvider{evt: evt}, &fakeBeginner{tx: tx}, &fakeClaimer{claimed: true}, nil,
			billing.WithInvalidator(inv))

		outcome, err := processor.Process(ctx, []byte(`{}`), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.Ignored, outcome)
		assert.True(t, tx.committed)
		assert.Empty(t, inv.calls)
	})

	t.Run("signature failure short-circuits before any transaction", func(t *testing.T) {
		beginner := &fakeBeginner{tx: &fakeTx{}}
		processor := billing.NewProcessor(&fakeProvider{err: billing.ErrInvalidSignature}, beginner, &fakeClaimer{}, nil)

		_, err := processor.Process(ctx, []byte(`{}`), "bad")
		require.ErrorIs(t, err, billing.ErrInvalidSignature)
		assert.False(t, beginner.begun)
	})

	t.Run("claim error is retryable", func(t *testing.T) {
		tx := &fakeTx{}
		claimErr := errors.New("connection reset")

		processor := billing.NewProcessor(&fakeProvider{evt: checkoutEvent()}, &fakeBeginner{tx: tx}, &fakeClaimer{err: claimErr}, nil)

		_, err := processor.Process(ctx, []byte(`{}`), "sig")
		require.ErrorIs(t, err, claimErr)
		assert.True(t, tx.rolledBack)
	})

	t.Run("commit failure surfaces as error", func(t *testing.T) {
		commitErr := errors.New("commit refused")
		tx := &fakeTx{commitErr: commitErr}
		handlers := map[string]billing.Handler{
			"checkout_completed": func(ctx context.Context, tx pgx.Tx, evt billing.Event) error { return nil },
		}

		processor := billing.NewProcessor(&fakeProvider{evt: checkoutEvent()}, &fakeBeginner{tx: tx}, &fakeClaimer{claimed: true}, handlers)

		_, err := processor.Process(ctx, []byte(`{}`), "sig")
		assert.ErrorIs(t, err, commitErr)
	})

}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "processed", billing.Processed.String())
	assert.Equal(t, "duplicate", billing.Duplicate.String())
	assert.Equal(t, "ignored", billing.Ignored.String())
}
