package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/SubGate/app/models"
	"gorm.io/gorm"
)

// Resolver locates the local payment an inbound event refers to.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve tries the identifiers in a fixed order and returns the first hit:
// external/invoice id, then order id, then gateway payment id. Empty
// identifiers skip their step; with none at all the store is not queried.
func (r *Resolver) Resolve(ctx context.Context, ids Identifiers) (*models.Payment, error) {
	n := ids.normalized()
	if n.IsEmpty() {
		return nil, &NotFoundError{Attempted: n}
	}

	var candidates []string
	for _, v := range []string{n.ExternalID, n.InvoiceID} {
		if v != "" && !contains(candidates, v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) > 0 {
		p, err := r.repo.FindByExternalOrInvoiceID(ctx, candidates)
		if p, done, err := hit(p, err); done {
			return p, err
		}
	}

	if n.OrderID != "" {
		p, err := r.repo.FindByOrderID(ctx, n.OrderID)
		if p, done, err := hit(p, err); done {
			return p, err
		}
	}

	if n.GatewayPaymentID != "" {
		p, err := r.repo.FindByGatewayPaymentID(ctx, n.GatewayPaymentID)
		if p, done, err := hit(p, err); done {
			return p, err
		}
	}

	return nil, &NotFoundError{Attempted: n}
}

// hit reports whether a lookup step is final: a match or a real store error.
func hit(p *models.Payment, err error) (*models.Payment, bool, error) {
	if err == nil && p != nil {
		return p, true, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, true, fmt.Errorf("resolve payment: %w", err)
	}
	return nil, false, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
