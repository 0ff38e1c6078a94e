package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawPriceRecord is one end-of-day bar exactly as received from the
// provider. Immutable once persisted; keyed by (symbol, trade_date,
// ingestion_date).
type RawPriceRecord struct {
	Symbol        string
	TradeDate     time.Time
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	IngestionDate time.Time
}

// RawNewsRecord is one news item as received from the provider. Immutable.
type RawNewsRecord struct {
	Symbol        string
	PublishedAt   time.Time
	Headline      string
	Snippet       string
	IngestionDate time.Time
}

// UniverseEntry describes one member of the scan universe.
type UniverseEntry struct {
	Symbol    string
	Name      string
	Sector    string
	SubSector string
}

// CanonicalPriceRow is the deduplicated daily bar, one per
// (symbol, trade_date), latest ingestion wins. Series are always handed
// around ordered ascending by trade date.
type CanonicalPriceRow struct {
	Symbol    string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}
