package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_SemicolonWithBOM(t *testing.T) {
	input := "\ufeffKm;Código;Serviço\n5,0;R-1;Implantar\n\n7,2;A-2;\"Remoção; urgente\"\n"

	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Km", "Código", "Serviço"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"5,0", "R-1", "Implantar"}, tbl.Rows[0].Cells)
	assert.Equal(t, 2, tbl.Rows[0].Number)
	assert.Equal(t, "Remoção; urgente", tbl.Rows[1].Get(2))
}

func TestReadCSV_Comma(t *testing.T) {
	input := "km,codigo\n5.0,R-1\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"km", "codigo"}, tbl.Header)
	assert.Equal(t, "R-1", tbl.Rows[0].Get(1))
}

func TestReadCSV_ExplicitDelimiter(t *testing.T) {
	input := "km|codigo\n5.0|R-1\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, "R-1", tbl.Rows[0].Get(1))
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Nil(t, tbl.Header)
	assert.Empty(t, tbl.Rows)
}

func TestStreamCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV_Comment(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("# nota\na,b\n"), CSVOptions{Comment: '#'})
	var rows [][]string
	for r := range rowCh {
		rows = append(rows, r)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}
