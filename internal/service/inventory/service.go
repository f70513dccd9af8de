// Package inventory is the stock gate consulted before an order is created.
// Checks are advisory; nothing is reserved.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront-checkout/internal/domain"
)

type stockAPI interface {
	CheckStock(ctx context.Context, item domain.StockCheckItem) (*domain.StockCheckResult, error)
	BulkCheckStock(ctx context.Context, items []domain.StockCheckItem) (*domain.BulkStockResult, error)
}

type Service struct {
	api    stockAPI
	logger *zap.Logger
}

func New(api stockAPI, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// CheckStock checks one line.
func (s *Service) CheckStock(ctx context.Context, productID, size string, quantity int) (domain.StockCheckResult, error) {
	if productID == "" {
		return domain.StockCheckResult{}, &domain.ValidationError{Field: "productId", Message: "product is required"}
	}
	if quantity < 1 {
		return domain.StockCheckResult{}, &domain.ValidationError{Field: "quantity", Message: "quantity must be at least 1"}
	}
	res, err := s.api.CheckStock(ctx, domain.StockCheckItem{ProductID: productID, Size: size, Quantity: quantity})
	if err != nil {
		s.logger.Warn("stock check failed", zap.String("product_id", productID), zap.Error(err))
		return domain.StockCheckResult{}, fmt.Errorf("check stock: %w", err)
	}
	return classify(domain.StockCheckItem{ProductID: productID, Size: size, Quantity: quantity}, res), nil
}

// BulkCheckStock checks every line in one request. Duplicate (productId,
// size) lines are summed first. A line the service does not answer for is
// unavailable. AllAvailable is recomputed from the results.
func (s *Service) BulkCheckStock(ctx context.Context, items []domain.StockCheckItem) (domain.BulkStockResult, error) {
	lines := Aggregate(items)
	if len(lines) == 0 {
		return domain.BulkStockResult{}, errors.New("no items to check")
	}

	res, err := s.api.BulkCheckStock(ctx, lines)
	if err != nil {
		s.logger.Warn("bulk stock check failed", zap.Int("lines", len(lines)), zap.Error(err))
		return domain.BulkStockResult{}, fmt.Errorf("bulk check stock: %w", err)
	}

	byKey := make(map[domain.LineKey]*domain.StockCheckResult, len(res.Results))
	byProduct := make(map[string]*domain.StockCheckResult, len(res.Results))
	for i := range res.Results {
		r := &res.Results[i]
		byKey[domain.LineKey{ProductID: r.ProductID, Size: r.Size}] = r
		if _, ok := byProduct[r.ProductID]; !ok {
			byProduct[r.ProductID] = r
		}
	}

	out := domain.BulkStockResult{Results: make([]domain.StockCheckResult, 0, len(lines)), AllAvailable: true}
	for _, line := range lines {
		r, ok := byKey[domain.LineKey{ProductID: line.ProductID, Size: line.Size}]
		if !ok && line.Size != "" {
			// Some services answer per product without echoing the size.
			r, ok = byProduct[line.ProductID]
			if ok && r.Size != "" {
				ok = false
			}
		}
		if !ok {
			r = nil
		}
		result := classify(line, r)
		if !result.IsAvailable {
			out.AllAvailable = false
		}
		out.Results = append(out.Results, result)
	}
	if !out.AllAvailable {
		s.logger.Info("stock check found unavailable lines", zap.Int("unavailable", len(out.Unavailable())))
	}
	return out, nil
}

func classify(line domain.StockCheckItem, r *domain.StockCheckResult) domain.StockCheckResult {
	out := domain.StockCheckResult{
		ProductID:         line.ProductID,
		Size:              line.Size,
		RequestedQuantity: line.Quantity,
	}
	if r == nil {
		return out
	}
	out.AvailableQuantity = r.AvailableQuantity
	out.IsAvailable = r.IsAvailable && r.AvailableQuantity >= line.Quantity
	return out
}

// Aggregate sums quantities of identical (productId, size) lines, keeping
// first-seen order and dropping non-positive quantities.
func Aggregate(items []domain.StockCheckItem) []domain.StockCheckItem {
	index := make(map[domain.LineKey]int, len(items))
	out := make([]domain.StockCheckItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		key := domain.LineKey{ProductID: item.ProductID, Size: item.Size}
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}
