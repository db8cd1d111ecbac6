package metering

import "time"

// BillingLine is one priced usage line.
type BillingLine struct {
	Metric   string  `json:"metric"`
	Units    int64   `json:"units"`
	UnitCost float64 `json:"unit_cost"`
}

// Amount returns units times unit cost.
func (l BillingLine) Amount() float64 {
	return float64(l.Units) * l.UnitCost
}

// BillingRecord prices a tenant's usage for one period.
type BillingRecord struct {
	TenantID        string        `json:"tenant_id"`
	Period          string        `json:"period"`
	GeneratedAt     time.Time     `json:"generated_at"`
	Lines           []BillingLine `json:"lines"`
	Subtotal        float64       `json:"subtotal"`
	DiscountPercent float64       `json:"discount_percent"`
	Total           float64       `json:"total"`
}

// ComputeBilling builds the record: subtotal is the sum of line amounts,
// total applies the percentage discount.
func ComputeBilling(tenantID, period string, lines []BillingLine, discountPercent float64, at time.Time) *BillingRecord {
	rec := &BillingRecord{
		TenantID:        tenantID,
		Period:          period,
		GeneratedAt:     at,
		Lines:           append([]BillingLine(nil), lines...),
		DiscountPercent: discountPercent,
	}
	for _, l := range lines {
		rec.Subtotal += l.Amount()
	}
	rec.Total = rec.Subtotal * (1 - discountPercent/100)
	return rec
}
