package models

import "time"

// Фильтры поиска тендеров. Пустые поля не ограничивают выборку.
type SearchFilter struct {
	Keyword     string
	Buyer       string
	Status      string
	CountryCode string
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}

type GroupBy string

const (
	GroupByStatus   GroupBy = "status"
	GroupByBuyer    GroupBy = "buyer"
	GroupByCategory GroupBy = "category"
)

type BuyerOrder string

const (
	OrderByCount BuyerOrder = "count"
	OrderByValue BuyerOrder = "value"
)

type GroupStats struct {
	Count      int     `db:"count" json:"count"`
	TotalValue float64 `db:"total_value" json:"totalValue"`
}

type BuyerStats struct {
	Buyer      string  `db:"buyer" json:"buyer"`
	Count      int     `db:"count" json:"count"`
	TotalValue float64 `db:"total_value" json:"totalValue"`
}

// Статистика по стоимости (только тендеры с указанной суммой)
type ValueStats struct {
	Count  int     `db:"count" json:"count"`
	Min    float64 `db:"min" json:"min"`
	Max    float64 `db:"max" json:"max"`
	Mean   float64 `db:"mean" json:"mean"`
	Median float64 `db:"median" json:"median"`
	Total  float64 `db:"total" json:"total"`
}

type Statistics struct {
	TotalTenders  int            `json:"totalTenders"`
	ByStatus      map[string]int `json:"byStatus"`
	RecentTenders int            `json:"recentTenders"`
	UniqueBuyers  int            `json:"uniqueBuyers"`
}
