package domain

// StockCheckItem is one line submitted to the inventory service.
type StockCheckItem struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

// StockCheckResult is produced per checkout attempt and never persisted.
type StockCheckResult struct {
	ProductID         string `json:"productId"`
	Size              string `json:"size,omitempty"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	IsAvailable       bool   `json:"isAvailable"`
}

// BulkStockResult is true in AllAvailable iff every result is available.
type BulkStockResult struct {
	Results      []StockCheckResult `json:"results"`
	AllAvailable bool               `json:"allAvailable"`
}

// Unavailable returns the results that failed the check.
func (r BulkStockResult) Unavailable() []StockCheckResult {
	var out []StockCheckResult
	for _, res := range r.Results {
		if !res.IsAvailable {
			out = append(out, res)
		}
	}
	return out
}
