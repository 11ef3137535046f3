package terminal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/store"
)

const (
	bankUsage  = "Usage: bank [+amount | -amount | amount]"
	stockUsage = "Usage: dm stock [name];[price]"
	buyUsage   = "Usage: buy [item name]"
)

// bankAmountPattern admits an optional sign followed by digits. A signed
// amount adjusts the balance; a bare amount replaces it.
var bankAmountPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)

func (s *Session) cmdBank(ctx context.Context, arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		balance, err := s.economy.Balance(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Gold: %d", balance), nil
	}

	if !bankAmountPattern.MatchString(trimmed) {
		return bankUsage, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return bankUsage, nil
	}

	var balance int64
	if trimmed[0] == '+' || trimmed[0] == '-' {
		balance, err = s.economy.Adjust(ctx, value)
	} else {
		balance, err = s.economy.SetBalance(ctx, value)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Gold: %d", balance), nil
}

func (s *Session) cmdShop(ctx context.Context, _ string) (string, error) {
	snapshots, err := s.cache.Refresh(ctx, store.CollectionShop)
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "The shop is empty.", nil
	}
	return renderListing(snapshots, renderShopLine), nil
}

func (s *Session) cmdBuy(ctx context.Context, arg string) (string, error) {
	name := strings.TrimSpace(arg)
	if name == "" {
		return buyUsage, nil
	}

	result, err := s.economy.Buy(ctx, name)
	if err != nil {
		return "", err
	}

	switch result.Status {
	case economy.PurchaseItemNotFound:
		return fmt.Sprintf("No item named '%s' in the shop.", name), nil
	case economy.PurchaseInsufficientFunds:
		return fmt.Sprintf("Not enough gold: %s costs %d, you have %d.",
			result.Name, result.Price, result.Balance), nil
	default:
		return fmt.Sprintf("Purchased %s for %d gold. Gold: %d",
			result.Name, result.Price, result.Balance), nil
	}
}

func (s *Session) cmdStock(ctx context.Context, arg string) (string, error) {
	parts := strings.Split(arg, ";")
	if len(parts) != 2 {
		return stockUsage, nil
	}
	name := strings.TrimSpace(parts[0])
	price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if name == "" || err != nil || price < 0 {
		return stockUsage, nil
	}

	if err := s.economy.Stock(ctx, name, price); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stocked %s (%d gold).", name, price), nil
}

func renderShopLine(ordinal int, snapshot store.Snapshot) string {
	name, _ := snapshot.Fields.String("name")
	price, _ := snapshot.Fields.Int("price")
	return fmt.Sprintf("%d. %s — %d gold", ordinal, name, price)
}
