// Package services contains the ledger's use cases: single-account wallet
// operations, the transfer saga coordinator, and reconciliation tooling.
package services

import "github.com/api-sage/wallet-ledger-core/internal/usecase/service_interfaces"

var _ service_interfaces.AccountService = (*AccountService)(nil)
var _ service_interfaces.TransferService = (*TransferService)(nil)
var _ service_interfaces.ReconciliationService = (*ReconciliationService)(nil)
