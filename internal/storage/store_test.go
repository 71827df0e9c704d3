package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

func newTestStore(t *testing.T, layout Layout) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), layout, nil)
	require.NoError(t, err)
	return s
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleRecords() []purchase.Record {
	return []purchase.Record{
		{
			ItemName:       "Pipette tips",
			Quantity:       "5 boxes",
			CatalogNumber:  "CAT-992",
			Link:           "https://example.com/item",
			DateOfRequest:  "2024-05-01",
			RequesterName:  "alice",
			RequesterID:    "U1",
			SlackTimestamp: "1714567890.000200",
			Format:         purchase.FormatDirectCommand,
			Confidence:     purchase.ConfidenceHigh,
			ExtractedDate:  "2024-05-01 12:51:30",
			IdentitySource: purchase.IdentityCommand,
		},
		{
			ItemName: "Gloves, nitrile",
			Quantity: "2",
			Format:   purchase.FormatHeuristic,
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for _, layout := range []Layout{LiveLayout, HistoricalLayout} {
		t.Run(layout.Prefix, func(t *testing.T) {
			s := newTestStore(t, layout)
			want := sampleRecords()

			require.NoError(t, s.Save("2024-05", want))
			got, err := s.Load("2024-05")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t, LiveLayout)
	got, err := s.Load("2024-05")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestStore_LoadCorrupted(t *testing.T) {
	s := newTestStore(t, LiveLayout)
	require.NoError(t, os.WriteFile(s.JSONPath("2024-05"), []byte("{not json"), 0o600))

	_, err := s.Load("2024-05")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_InvalidBucket(t *testing.T) {
	s := newTestStore(t, LiveLayout)

	for _, b := range []string{"", "2024-5", "../2024-05", "2024-05/x", "UNKNOWN"} {
		_, err := s.Load(b)
		assert.ErrorIs(t, err, ErrInvalidBucket, "bucket %q", b)
		assert.ErrorIs(t, s.Save(b, nil), ErrInvalidBucket)
		_, err = s.Append(b, purchase.Record{})
		assert.ErrorIs(t, err, ErrInvalidBucket)
	}
	assert.NoError(t, ValidateBucket(purchase.UnknownBucket))
}

func TestStore_LiveCSV(t *testing.T) {
	s := newTestStore(t, LiveLayout)
	require.NoError(t, s.Save("2024-05", sampleRecords()))

	assert.Equal(t, filepath.Join("purchase_requests", "purchase_requests_2024-05.csv"),
		filepath.Join(filepath.Base(filepath.Dir(s.CSVPath("2024-05"))), filepath.Base(s.CSVPath("2024-05"))))

	rows := readCSV(t, s.CSVPath("2024-05"))
	assert.Equal(t, [][]string{
		{"item_name", "quantity", "catalog_number", "link", "date_of_request"},
		{"Pipette tips", "5 boxes", "CAT-992", "https://example.com/item", "2024-05-01"},
		{"Gloves, nitrile", "2", "", "", ""},
	}, rows)
}

func TestStore_HistoricalCSV(t *testing.T) {
	s := newTestStore(t, HistoricalLayout)
	require.NoError(t, s.Save("2024-05", sampleRecords()))

	rows := readCSV(t, s.CSVPath("2024-05"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"requester_name", "item_name", "quantity", "catalog_number", "link", "date_of_request",
		"slack_timestamp", "format_type", "confidence", "extracted_date", "original_user_id",
	}, rows[0])
	assert.Equal(t, []string{
		"alice", "Pipette tips", "5 boxes", "CAT-992", "https://example.com/item", "2024-05-01",
		"1714567890.000200", "direct_command", "high", "2024-05-01 12:51:30", "U1",
	}, rows[1])
	assert.Equal(t, "Unknown", rows[2][0])
	assert.Equal(t, "high", rows[2][8])
	assert.Equal(t, "", rows[2][10])
}

func TestStore_AppendIsSerialized(t *testing.T) {
	s := newTestStore(t, LiveLayout)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append("2024-05", purchase.Record{ItemName: fmt.Sprintf("item %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Load("2024-05")
	require.NoError(t, err)
	assert.Len(t, got, n)

	count, err := s.Append("2024-05", purchase.Record{ItemName: "last"})
	require.NoError(t, err)
	assert.Equal(t, n+1, count)
}

func TestStore_WriteBucketsAndList(t *testing.T) {
	s := newTestStore(t, HistoricalLayout)

	files, err := s.WriteBuckets(map[string][]purchase.Record{
		"2024-06":              {{ItemName: "b"}},
		"2024-05":              {{ItemName: "a"}},
		purchase.UnknownBucket: {{ItemName: "c"}},
		"2024-07":              {},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		s.JSONPath("2024-05"), s.CSVPath("2024-05"),
		s.JSONPath("2024-06"), s.CSVPath("2024-06"),
		s.JSONPath(purchase.UnknownBucket), s.CSVPath(purchase.UnknownBucket),
	}, files)

	buckets, err := s.Buckets()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05", "2024-06", purchase.UnknownBucket}, buckets)

	_, err = os.Stat(s.JSONPath("2024-07"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t, HistoricalLayout)
	require.NoError(t, s.Save("2024-05", sampleRecords()))
	require.NoError(t, s.Save("2024-05", []purchase.Record{{ItemName: "only"}}))

	got, err := s.Load("2024-05")
	require.NoError(t, err)
	assert.Equal(t, []purchase.Record{{ItemName: "only"}}, got)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestNewStore_RequiresRoot(t *testing.T) {
	_, err := NewStore("", LiveLayout, nil)
	assert.Error(t, err)
}
