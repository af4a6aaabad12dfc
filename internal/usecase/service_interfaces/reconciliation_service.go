package service_interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/usecase/models"
)

type ReconciliationService interface {
	FindStuck(ctx context.Context) ([]models.StuckTransaction, error)
	CheckConservation(ctx context.Context, expectedTotal decimal.Decimal) error
}
