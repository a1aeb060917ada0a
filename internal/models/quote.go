package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// Price is rendered as a JSON number, not as a quoted decimal string
func (q Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Price     json.Number `json:"price"`
		Timestamp time.Time   `json:"timestamp"`
	}{
		Price:     json.Number(q.Price.String()),
		Timestamp: q.Timestamp,
	})
}

// Aggregation window for historic quotes
type GroupBy string

const (
	GroupByMinute  GroupBy = "minute"
	GroupByHour    GroupBy = "hour"
	GroupByDay     GroupBy = "day"
	GroupByWeek    GroupBy = "week"
	GroupByMonth   GroupBy = "month"
	GroupByQuarter GroupBy = "quarter"
	GroupByYear    GroupBy = "year"
)

type HistoricQuery struct {
	From    int64
	To      int64
	GroupBy GroupBy
}
