package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFstop_id,stop_name\nAA010,Rideau\n"
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"stop_id", "stop_name"}, <-headerCh)
}

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "name,age\nalice,30\nbob,25\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alice", "30"}, rows[0])
	assert.Equal(t, []string{"name", "age"}, <-headerCh)
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := " a , b \n 1 , 2 \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Comment(t *testing.T) {
	input := "# generated\na,b\n1,2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count == 5 {
			cancel()
		}
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	// The goroutine may finish before it notices the cancel.
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
}

func TestHeader(t *testing.T) {
	h := NewHeader([]string{"Stop_ID", " stop_name ", "stop_lat", "stop_lon"})

	assert.True(t, h.Has("stop_id", "STOP_LAT"))
	assert.False(t, h.Has("stop_id", "location_type"))
	assert.Equal(t, []string{"location_type"}, h.Missing("stop_lon", "location_type"))

	row := []string{"AA010", " Rideau ", "45.42"}
	assert.Equal(t, "Rideau", h.Get(row, "stop_name"))
	assert.Equal(t, "", h.Get(row, "stop_lon"), "short row")
	assert.Equal(t, "", h.Get(row, "zone_id"), "absent column")
}

func TestReadAll(t *testing.T) {
	h, rows, err := ReadAll(context.Background(), strings.NewReader("GeoUID,Population\n35061234,410\n35061235,x\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "410", h.Get(rows[0], "population"))
	assert.Equal(t, "x", h.Get(rows[1], "Population"))

	_, _, err = ReadAll(context.Background(), strings.NewReader(""))
	assert.ErrorContains(t, err, "empty input")
}
