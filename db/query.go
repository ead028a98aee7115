package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tendly/models"
)

// Колонки для группировки; значения из запроса в SQL не попадают.
var groupColumns = map[models.GroupBy]string{
	models.GroupByStatus:   "status",
	models.GroupByBuyer:    "buyer_name",
	models.GroupByCategory: "main_procurement_category",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereBuilder собирает условия WHERE с позиционными параметрами.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func filterWhere(f models.SearchFilter) *whereBuilder {
	w := &whereBuilder{}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		w.add("(title ILIKE ? OR description ILIKE ?)", "%"+likeEscaper.Replace(kw)+"%")
	}
	if buyer := strings.TrimSpace(f.Buyer); buyer != "" {
		w.add("buyer_name ILIKE ?", "%"+likeEscaper.Replace(buyer)+"%")
	}
	// status: одно значение или список через запятую
	if statuses := splitList(f.Status); len(statuses) == 1 {
		w.add("status = ?", statuses[0])
	} else if len(statuses) > 1 {
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if f.CountryCode != "" {
		w.add("country_code = ?", f.CountryCode)
	}
	if f.DateFrom != nil {
		w.add("publication_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		w.add("publication_date <= ?", *f.DateTo)
	}
	return w
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func countryWhere(countryCode string, extra ...string) *whereBuilder {
	w := &whereBuilder{conds: extra}
	if countryCode != "" {
		w.add("country_code = ?", countryCode)
	}
	return w
}

// SearchTenders - поиск с фильтрами, новые публикации первыми.
func (s *Storage) SearchTenders(ctx context.Context, f models.SearchFilter) ([]models.Tender, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	return s.selectTenders(ctx, f, limit, offset)
}

// ExportTenders - как SearchTenders, но без постраничного ограничения:
// не больше maxRows строк, остальное молча отбрасывается.
func (s *Storage) ExportTenders(ctx context.Context, f models.SearchFilter, maxRows int) ([]models.Tender, error) {
	if maxRows <= 0 {
		maxRows = DefaultExportRows
	}
	return s.selectTenders(ctx, f, maxRows, 0)
}

func (s *Storage) selectTenders(ctx context.Context, f models.SearchFilter, limit, offset int) ([]models.Tender, error) {
	w := filterWhere(f)
	query := "SELECT * FROM tenders" + w.sql() +
		" ORDER BY publication_date DESC NULLS LAST, id DESC" +
		fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	tenders := []models.Tender{}
	if err := s.db.SelectContext(ctx, &tenders, query, w.args...); err != nil {
		return nil, err
	}
	return tenders, nil
}

// CountTenders - число тендеров под фильтром (без limit/offset).
func (s *Storage) CountTenders(ctx context.Context, f models.SearchFilter) (int, error) {
	w := filterWhere(f)
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM tenders"+w.sql(), w.args...)
	return n, err
}

// Aggregate - число и суммарная стоимость по группам.
func (s *Storage) Aggregate(ctx context.Context, groupBy models.GroupBy, countryCode string) (map[string]models.GroupStats, error) {
	col, ok := groupColumns[groupBy]
	if !ok {
		return nil, fmt.Errorf("invalid group_by %q: use status, buyer or category", groupBy)
	}
	w := countryWhere(countryCode)
	query := fmt.Sprintf(`
        SELECT %[1]s AS grp, COUNT(*) AS count, COALESCE(SUM(value_amount), 0) AS total_value
        FROM tenders%[2]s
        GROUP BY %[1]s`, col, w.sql())

	var rows []struct {
		Group string `db:"grp"`
		models.GroupStats
	}
	if err := s.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, err
	}

	out := make(map[string]models.GroupStats, len(rows))
	for _, r := range rows {
		out[r.Group] = r.GroupStats
	}
	return out, nil
}

// TopBuyers - n покупателей по числу тендеров или сумме; при равенстве по имени.
func (s *Storage) TopBuyers(ctx context.Context, n int, orderBy models.BuyerOrder, countryCode string) ([]models.BuyerStats, error) {
	var order string
	switch orderBy {
	case models.OrderByCount, "":
		order = "count DESC"
	case models.OrderByValue:
		order = "total_value DESC"
	default:
		return nil, fmt.Errorf("invalid order_by %q: use count or value", orderBy)
	}
	n, _ = pageBounds(n, 0)

	w := countryWhere(countryCode, "buyer_name <> ''")
	query := fmt.Sprintf(`
        SELECT buyer_name AS buyer, COUNT(*) AS count, COALESCE(SUM(value_amount), 0) AS total_value
        FROM tenders%s
        GROUP BY buyer_name
        ORDER BY %s, buyer_name ASC
        LIMIT %d`, w.sql(), order, n)

	buyers := []models.BuyerStats{}
	if err := s.db.SelectContext(ctx, &buyers, query, w.args...); err != nil {
		return nil, err
	}
	return buyers, nil
}

// ValueStats - статистика по тендерам с указанной стоимостью.
func (s *Storage) ValueStats(ctx context.Context, countryCode string) (*models.ValueStats, error) {
	w := countryWhere(countryCode, "value_amount IS NOT NULL")
	query := `
        SELECT COUNT(*) AS count,
            COALESCE(MIN(value_amount), 0) AS min,
            COALESCE(MAX(value_amount), 0) AS max,
            COALESCE(AVG(value_amount), 0) AS mean,
            COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY value_amount), 0) AS median,
            COALESCE(SUM(value_amount), 0) AS total
        FROM tenders` + w.sql()

	vs := &models.ValueStats{}
	if err := s.db.GetContext(ctx, vs, query, w.args...); err != nil {
		return nil, err
	}
	return vs, nil
}

// Statistics - сводка для главной страницы.
func (s *Storage) Statistics(ctx context.Context, countryCode string) (*models.Statistics, error) {
	st := &models.Statistics{ByStatus: map[string]int{}}

	w := countryWhere(countryCode)
	query := `
        SELECT COUNT(*),
            COUNT(*) FILTER (WHERE publication_date >= NOW() - INTERVAL '7 days'),
            COUNT(DISTINCT NULLIF(buyer_name, ''))
        FROM tenders` + w.sql()
	if err := s.db.QueryRowxContext(ctx, query, w.args...).
		Scan(&st.TotalTenders, &st.RecentTenders, &st.UniqueBuyers); err != nil {
		return nil, err
	}

	byStatus, err := s.Aggregate(ctx, models.GroupByStatus, countryCode)
	if err != nil {
		return nil, err
	}
	for status, g := range byStatus {
		st.ByStatus[status] = g.Count
	}
	return st, nil
}
