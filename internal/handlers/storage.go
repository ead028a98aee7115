package handlers

import (
	"context"

	"tendly/models"
)

// StorageInterface - чтение из хранилища, нужное HTTP API.
// Загрузка данных идёт через ingest, здесь записи нет.
type StorageInterface interface {
	Ping(ctx context.Context) error

	SearchTenders(ctx context.Context, f models.SearchFilter) ([]models.Tender, error)
	CountTenders(ctx context.Context, f models.SearchFilter) (int, error)
	ExportTenders(ctx context.Context, f models.SearchFilter, maxRows int) ([]models.Tender, error)
	GetTender(ctx context.Context, id int64) (*models.TenderDetail, error)

	Aggregate(ctx context.Context, groupBy models.GroupBy, countryCode string) (map[string]models.GroupStats, error)
	TopBuyers(ctx context.Context, n int, orderBy models.BuyerOrder, countryCode string) ([]models.BuyerStats, error)
	ValueStats(ctx context.Context, countryCode string) (*models.ValueStats, error)
	Statistics(ctx context.Context, countryCode string) (*models.Statistics, error)

	ListRuns(ctx context.Context, countryCode string, limit int) ([]models.ScrapingLogEntry, error)
}
