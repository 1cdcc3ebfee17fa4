// Package txn holds what every ledger-facing service shares: translation of
// repository sentinels into StoreError values and bounded retry.
package txn

import (
	"context"
	"errors"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
)

// Translate maps repository errors to StoreError. Errors that already carry a
// code pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *types.StoreError
	if types.As(err, &storeErr) {
		return err
	}

	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return types.WrapError(types.ErrAccountNotFound, "Account not found", err)
	case errors.Is(err, ledger.ErrAccountExists):
		return types.WrapError(types.ErrAccountExists, "An account with this email already exists", err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return types.WrapError(types.ErrInsufficientFunds, "Insufficient balance", err)
	case errors.Is(err, ledger.ErrOrderNotFound):
		return types.WrapError(types.ErrOrderNotFound, "Order not found", err)
	case errors.Is(err, ledger.ErrAlreadyFinalized):
		return types.WrapError(types.ErrAlreadyFinalized, "Order has already been finalized", err)
	case errors.Is(err, ledger.ErrStoreBusy):
		return types.WrapError(types.ErrStoreUnavailable, "Store is busy, try again", err)
	case errors.Is(err, catalog.ErrProductNotFound):
		return types.WrapError(types.ErrNotFound, "Product not found", err)
	case errors.Is(err, catalog.ErrCategoryNotFound):
		return types.WrapError(types.ErrNotFound, "Category not found", err)
	case errors.Is(err, catalog.ErrMethodNotFound):
		return types.WrapError(types.ErrNotFound, "Recharge method not found", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.WrapError(types.ErrStoreUnavailable, "Request cancelled", err)
	default:
		return types.WrapError(types.ErrInternalError, "Internal error", err)
	}
}
