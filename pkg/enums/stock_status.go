package enums

// StockStatus is derived from an item's total stock and threshold.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// DeriveStockStatus classifies total stock against the low-stock threshold.
func DeriveStockStatus(total, threshold int) StockStatus {
	switch {
	case total <= 0:
		return StockOutOfStock
	case total <= threshold:
		return StockLowStock
	default:
		return StockInStock
	}
}
