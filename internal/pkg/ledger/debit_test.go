package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasBergmann/CompanionDeck/app/models"
)

func TestMessageCost(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int64
	}{
		{"empty", "", 0},
		{"whitespace only", "  \t \n ", 0},
		{"single word", "hello", 1},
		{"simple sentence", "the quick brown fox", 4},
		{"punctuation sticks to words", "Well, that's great!", 3},
		{"newlines and tabs split", "one\ntwo\tthree  four", 4},
		{"leading and trailing space", "  padded response  ", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageCost(tt.text))
		})
	}
}

func TestCanChat(t *testing.T) {
	assert.True(t, CanChat(1))
	assert.True(t, CanChat(5000))
	assert.False(t, CanChat(0))
	assert.False(t, CanChat(-1))
}

func TestDebitForResponseChargesWordCount(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 100})
	svc := NewService(accounts)

	after, err := svc.DebitForResponse(context.Background(), user.ID, "five words in this reply")
	require.NoError(t, err)
	assert.Equal(t, int64(95), after.Credits)
}

func TestDebitForResponseClampsAtZero(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 3})
	svc := NewService(accounts)

	after, err := svc.DebitForResponse(context.Background(), user.ID, "a response that costs far more than three credits")
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Credits)
}

func TestDebitForResponseZeroCostIsReadOnly(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 7})
	svc := NewService(accounts)

	after, err := svc.DebitForResponse(context.Background(), user.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), after.Credits)
}

func TestDebitForResponseDoesNotRetryMissingAccount(t *testing.T) {
	accounts := newFakeAccounts()
	svc := NewService(accounts)

	_, err := svc.DebitForResponse(context.Background(), 42, "two words")
	assert.ErrorIs(t, err, ErrNotFound)
	// A missing account is terminal; retrying the debit is pointless.
	assert.Equal(t, 1, accounts.debitCalls)
}

func TestDebitForResponseRetriesTransientFailure(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 10})
	accounts.failErr = errors.New("connection reset")
	svc := NewService(accounts)

	after, err := svc.DebitForResponse(context.Background(), user.ID, "two words")
	require.NoError(t, err)
	assert.Equal(t, int64(8), after.Credits)
}
