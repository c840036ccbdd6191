package ledger

import (
	"context"
	"errors"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/metrics"
)

// MessageCost converts an assistant response into its credit cost: the
// whitespace-delimited word count of the text.
func MessageCost(text string) int64 {
	return int64(len(strings.Fields(text)))
}

// CanChat is the gating predicate the UI layer checks before submitting a new
// chat turn. An exhausted balance blocks new turns; it never interrupts a
// response that is already in flight.
func CanChat(credits int64) bool {
	return credits > 0
}

// DebitForResponse charges the account for a completed chat exchange. The
// debit clamps at zero: the response was already produced, so it is charged
// at most down to an empty balance. A transient store error is retried once;
// after that the failure is logged and the balance stays stale by this one
// turn's cost.
func (s *Service) DebitForResponse(ctx context.Context, accountID uint, responseText string) (*models.User, error) {
	_ = ctx
	cost := MessageCost(responseText)
	if cost == 0 {
		return s.Read(ctx, accountID)
	}

	user, err := s.accounts.DebitClamped(accountID, cost)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.accounts.DebitClamped(accountID, cost)
	}
	if err != nil {
		log.Printf("ledger: debit of %d credits for account %d failed after retry: %v", cost, accountID, err)
		return nil, mapNotFound(err)
	}

	metrics.CreditsDebited.Add(float64(cost))
	return user, nil
}
