package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tickstore/internal/errors"
)

const ticksCSV = "time,ask,bid\n" +
	"2024-03-01 09:00:00.000,1.0851,1.0850\n" +
	"2024-03-01 09:00:01.000,1.0852,1.0851\n" +
	"\"2024-03-01 09:00:02.000\",1.0853,1.0852\n" +
	"2024-03-01 09:00:03.000,1.0854,1.0853\n" +
	"2024-03-01 09:00:04.000,1.0855,1.0854\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, src Source, batch int) [][][]string {
	t.Helper()
	var batches [][][]string
	for {
		rows, err := src.Next(batch)
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, rows)
	}
}

func TestCSVSourceBatches(t *testing.T) {
	for _, useMmap := range []bool{false, true} {
		name := "buffered"
		if useMmap {
			name = "mmap"
		}
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "EURUSD-ticks.csv", ticksCSV)

			src, err := Open(path, Options{UseMmap: useMmap})
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, []string{"time", "ask", "bid"}, src.Header())
			assert.Equal(t, path, src.Path())

			batches := readAll(t, src, 2)
			require.Len(t, batches, 3)
			assert.Len(t, batches[0], 2)
			assert.Len(t, batches[2], 1)
			assert.Equal(t, "2024-03-01 09:00:02.000", batches[1][0][0])
			assert.Equal(t, "1.0855", batches[2][0][1])

			_, err = src.Next(2)
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestCSVSourceStripsBOM(t *testing.T) {
	for _, useMmap := range []bool{false, true} {
		path := writeFile(t, t.TempDir(), "a.csv", "\xEF\xBB\xBFGmt time, Open\n01.03.2024 09:00:00.000,1.1\n")

		src, err := Open(path, Options{UseMmap: useMmap})
		require.NoError(t, err)

		assert.Equal(t, []string{"Gmt time", "Open"}, src.Header())
		require.NoError(t, src.Close())
	}
}

func TestCSVSourceEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.csv", "")

	src, err := Open(path, Options{UseMmap: true})
	require.NoError(t, err)
	defer src.Close()

	assert.Empty(t, src.Header())
	_, err = src.Next(10)
	assert.Equal(t, io.EOF, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.True(t, errors.Is(err, errors.ErrMissingInput))
}

func TestOpenUnsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.json", "{}")
	_, err := Open(path, Options{})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedSource))
}

func TestPeek(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", ticksCSV)

	header, first, err := Peek(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "ask", "bid"}, header)
	assert.Equal(t, []string{"2024-03-01 09:00:00.000", "1.0851", "1.0850"}, first)

	path = writeFile(t, t.TempDir(), "b.csv", "time,ask\n")
	header, first, err = Peek(path, Options{})
	require.NoError(t, err)
	assert.Len(t, header, 2)
	assert.Nil(t, first)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "x\n")
	writeFile(t, dir, "a.CSV", "x\n")
	writeFile(t, dir, "c.parquet", "")
	writeFile(t, dir, "readme.md", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.CSV"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "c.parquet"),
	}, files)

	_, err = Discover(filepath.Join(dir, "absent"))
	assert.True(t, errors.Is(err, errors.ErrMissingInput))
}

func TestSymbol(t *testing.T) {
	tests := map[string]string{
		"/data/EURUSD-ticks.csv":       "EURUSD",
		"GBPUSD_Ask_2024.csv":          "GBPUSD",
		"usdjpy.parquet":               "usdjpy",
		"/a/b/XAUUSD-bidPrices.2024.x": "XAUUSD",
	}
	for in, want := range tests {
		assert.Equal(t, want, Symbol(in), in)
	}
}

type quoteRow struct {
	Time string  `parquet:"time"`
	Bid  float64 `parquet:"bid"`
	Size int64   `parquet:"size"`
}

func TestParquetSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.parquet")
	rows := []quoteRow{
		{Time: "2024-03-01 09:00:00", Bid: 1.5, Size: 10},
		{Time: "2024-03-01 09:00:01", Bid: 1.25, Size: 20},
		{Time: "2024-03-01 09:00:02", Bid: 1.125, Size: 30},
	}
	require.NoError(t, parquet.WriteFile(path, rows))

	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Close()

	header := src.Header()
	require.ElementsMatch(t, []string{"time", "bid", "size"}, header)
	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}

	batches := readAll(t, src, 2)
	require.Len(t, batches, 2)
	last := batches[1][0]
	assert.Equal(t, "2024-03-01 09:00:02", last[idx["time"]])
	assert.Equal(t, "1.125", last[idx["bid"]])
	assert.Equal(t, "30", last[idx["size"]])
}
