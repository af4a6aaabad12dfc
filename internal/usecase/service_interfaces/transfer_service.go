package service_interfaces

import (
	"context"

	"github.com/api-sage/wallet-ledger-core/internal/usecase/models"
)

type TransferService interface {
	Transfer(ctx context.Context, req models.TransferRequest) (models.TransferResult, error)
	GetTransfer(ctx context.Context, transactionID string) (models.TransferResult, error)
}
