// Package identify resolves an operator-side identification read (contactless
// card, code scan or manual id entry) into a customer projection. Every
// strategy produces the same result contract or a lookup failure.
package identify

import (
	"context"
	"errors"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/service/ledgerapi"
)

type profileReader interface {
	GetProfile(ctx context.Context, customerID string) (models.Customer, error)
}

type Strategy interface {
	Method() string

	// Lookup resolves a raw read into a customer.
	// Must return apperrors.ErrCustomerNotFound when no member matches and
	// apperrors.ErrCodeUnreadable when the raw read cannot be decoded.
	Lookup(ctx context.Context, code string) (models.Customer, error)
}

// Identifier dispatches to the configured strategies by method name.
type Identifier struct {
	strategies map[string]Strategy
	logger     logger.Logger
}

func New(reader profileReader, logger logger.Logger) *Identifier {
	id := &Identifier{
		strategies: map[string]Strategy{},
		logger:     logger,
	}

	for _, s := range []Strategy{
		&NFCStrategy{reader: reader},
		&QRStrategy{reader: reader},
		&ManualStrategy{reader: reader},
	} {
		id.strategies[s.Method()] = s
	}

	return id
}

func (i *Identifier) Lookup(ctx context.Context, method string, code string) (models.Customer, error) {
	strategy, ok := i.strategies[method]
	if !ok {
		return models.Customer{}, apperrors.ErrUnknownMethod
	}

	customer, err := strategy.Lookup(ctx, code)
	if err != nil {
		var lerr *ledgerapi.Error
		if errors.As(err, &lerr) && lerr.Code == ledgerapi.CodeNotFound {
			err = apperrors.ErrCustomerNotFound
		}
		i.logger.Info("Identification failed", "method", method, "error", err)
		return models.Customer{}, err
	}

	i.logger.Debug("Customer identified", "method", method, "customer_id", customer.ID)
	return customer, nil
}
