package synthetic_test

import (
	"context"
	"testing"
	"time"

	"tendly/internal/errs"
	"tendly/internal/source"
	"tendly/internal/source/ocds"
	"tendly/internal/synthetic"

	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestGeneratorPaginates(t *testing.T) {
	g := synthetic.New(synthetic.Config{Total: 25, Seed: 7, Now: fixedNow})

	var total int
	cursor := ""
	pages := 0
	for {
		page, err := g.Fetch(context.Background(), source.FetchParams{Limit: 10, Cursor: cursor})
		require.NoError(t, err)
		total += len(page.Records)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	require.Equal(t, 25, total)
	require.Equal(t, 3, pages)
}

func TestGeneratorIsDeterministic(t *testing.T) {
	a := synthetic.New(synthetic.Config{Total: 5, Seed: 11, Now: fixedNow})
	b := synthetic.New(synthetic.Config{Total: 5, Seed: 11, Now: fixedNow})

	pa, err := a.Fetch(context.Background(), source.FetchParams{})
	require.NoError(t, err)
	pb, err := b.Fetch(context.Background(), source.FetchParams{})
	require.NoError(t, err)
	require.Equal(t, pa.Records, pb.Records)
}

func TestGeneratedReleasesParse(t *testing.T) {
	g := synthetic.New(synthetic.Config{Total: 50, Now: fixedNow})
	page, err := g.Fetch(context.Background(), source.FetchParams{Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Records, 50)

	parser := ocds.NewParser()
	seen := map[string]bool{}
	for _, raw := range page.Records {
		nt, err := parser.Parse(raw)
		require.NoError(t, err)
		require.NotEmpty(t, nt.Tender.NoticeID)
		require.False(t, seen[nt.Tender.NoticeID], "duplicate notice id %s", nt.Tender.NoticeID)
		seen[nt.Tender.NoticeID] = true

		require.NotEmpty(t, nt.Tender.BuyerName)
		require.NotEmpty(t, nt.Tender.BuyerEmail)
		require.Equal(t, "GBP", nt.Tender.ValueCurrency)
		require.NotNil(t, nt.Tender.ValueAmount)
		require.GreaterOrEqual(t, *nt.Tender.ValueAmount, 10000.0)
		require.NotNil(t, nt.Tender.PublicationDate)
		require.False(t, nt.Tender.PublicationDate.After(fixedNow()))
	}
}

func TestGeneratorRejectsBadCursor(t *testing.T) {
	g := synthetic.New(synthetic.Config{})
	_, err := g.Fetch(context.Background(), source.FetchParams{Cursor: "page-two"})
	require.True(t, errs.IsFatal(err))
}

func TestGeneratorCursorPastEnd(t *testing.T) {
	g := synthetic.New(synthetic.Config{Total: 3})
	page, err := g.Fetch(context.Background(), source.FetchParams{Cursor: "10"})
	require.NoError(t, err)
	require.Empty(t, page.Records)
	require.Empty(t, page.NextCursor)
}
