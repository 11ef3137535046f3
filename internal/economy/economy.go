// Package economy implements the gold ledger and shop over the document
// store: balance reads and adjustments, stocking priced items, and the
// multi-step buy sequence.
package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/libraryterminal/archive/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("document store is required")
	errMissingName  = errors.New("item name is required")
	noOpLogger      = zap.NewNop()
)

const (
	opServiceNew = "economy.new"
	opBalance    = "economy.balance"
	opAdjust     = "economy.adjust"
	opSetBalance = "economy.set_balance"
	opStock      = "economy.stock"
	opBuy        = "economy.buy"
)

// ServiceError carries an operation-scoped failure code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Config captures the dependencies of the economy service.
type Config struct {
	Store  *store.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service owns the gold ledger singleton and the shop collection.
type Service struct {
	store  *store.Store
	clock  func() time.Time
	logger *zap.Logger
}

// New constructs a Service from its configuration.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{store: cfg.Store, clock: clock, logger: logger}, nil
}

// Balance reads the current gold balance. A missing ledger document reads
// as zero without creating one.
func (s *Service) Balance(ctx context.Context) (int64, error) {
	fields, found, err := s.store.GetSingleton(ctx, store.CollectionMeta, store.SingletonGold)
	if err != nil {
		return 0, newServiceError(opBalance, "ledger_read_failed", err)
	}
	if !found {
		return 0, nil
	}
	amount, _ := fields.Int("amount")
	return amount, nil
}

// Adjust adds delta to the current balance and returns the new value. No
// lower bound is enforced; the balance may go negative.
func (s *Service) Adjust(ctx context.Context, delta int64) (int64, error) {
	balance, err := s.Balance(ctx)
	if err != nil {
		return 0, err
	}
	updated := balance + delta
	if err := s.writeBalance(ctx, updated); err != nil {
		return 0, newServiceError(opAdjust, "ledger_write_failed", err)
	}
	return updated, nil
}

// SetBalance replaces the balance outright and returns the stored value.
func (s *Service) SetBalance(ctx context.Context, amount int64) (int64, error) {
	if err := s.writeBalance(ctx, amount); err != nil {
		return 0, newServiceError(opSetBalance, "ledger_write_failed", err)
	}
	return amount, nil
}

// Stock appends a priced item to the shop. Duplicate names are allowed.
func (s *Service) Stock(ctx context.Context, name string, price int64) error {
	if name == "" {
		return newServiceError(opStock, "missing_name", errMissingName)
	}
	_, err := s.store.Add(ctx, store.CollectionShop, store.Fields{
		"name":               name,
		"price":              price,
		store.FieldTimestamp: s.clock().UTC().UnixMilli(),
	})
	if err != nil {
		return newServiceError(opStock, "item_insert_failed", err)
	}
	return nil
}

// PurchaseStatus describes the outcome of a buy attempt.
type PurchaseStatus int

const (
	// PurchaseCompleted means the ledger was debited, the item granted,
	// and the shop entry removed.
	PurchaseCompleted PurchaseStatus = iota
	// PurchaseItemNotFound means no shop item carries the requested name.
	PurchaseItemNotFound
	// PurchaseInsufficientFunds means the balance does not cover the price.
	PurchaseInsufficientFunds
)

// PurchaseResult reports what a buy attempt decided and the balance it
// observed or produced.
type PurchaseResult struct {
	Status  PurchaseStatus
	Name    string
	Price   int64
	Balance int64
}

// Buy runs the purchase sequence: read balance, look up the item by exact
// name, debit the ledger, grant the item to the inventory, remove the shop
// entry. The steps are not transactional; an interruption between them can
// leave the ledger, inventory, and shop divergent.
func (s *Service) Buy(ctx context.Context, name string) (PurchaseResult, error) {
	if name == "" {
		return PurchaseResult{}, newServiceError(opBuy, "missing_name", errMissingName)
	}

	balance, err := s.Balance(ctx)
	if err != nil {
		return PurchaseResult{}, newServiceError(opBuy, "ledger_read_failed", err)
	}

	item, found, err := s.store.QueryByField(ctx, store.CollectionShop, "name", name)
	if err != nil {
		return PurchaseResult{}, newServiceError(opBuy, "item_lookup_failed", err)
	}
	if !found {
		return PurchaseResult{Status: PurchaseItemNotFound, Name: name, Balance: balance}, nil
	}

	price, _ := item.Fields.Int("price")
	if balance < price {
		return PurchaseResult{
			Status:  PurchaseInsufficientFunds,
			Name:    name,
			Price:   price,
			Balance: balance,
		}, nil
	}

	updated := balance - price
	if err := s.writeBalance(ctx, updated); err != nil {
		return PurchaseResult{}, newServiceError(opBuy, "ledger_write_failed", err)
	}

	if _, err := s.store.Add(ctx, store.CollectionInventory, store.Fields{
		"text":               name,
		store.FieldTimestamp: s.clock().UTC().UnixMilli(),
	}); err != nil {
		s.logger.Error("purchase diverged after debit",
			zap.String("operation", opBuy),
			zap.String("item", name),
			zap.Error(err))
		return PurchaseResult{}, newServiceError(opBuy, "item_grant_failed", err)
	}

	if err := s.store.Delete(ctx, store.CollectionShop, item.ID); err != nil {
		s.logger.Error("purchase diverged after grant",
			zap.String("operation", opBuy),
			zap.String("item", name),
			zap.Error(err))
		return PurchaseResult{}, newServiceError(opBuy, "item_remove_failed", err)
	}

	return PurchaseResult{
		Status:  PurchaseCompleted,
		Name:    name,
		Price:   price,
		Balance: updated,
	}, nil
}

func (s *Service) writeBalance(ctx context.Context, amount int64) error {
	return s.store.SetSingleton(ctx, store.CollectionMeta, store.SingletonGold, store.Fields{
		"amount":             amount,
		store.FieldTimestamp: s.clock().UTC().UnixMilli(),
	})
}
