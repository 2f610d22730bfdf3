package warehouse

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// CountParquetRows sums the row counts recorded in the footers of the given files.
func CountParquetRows(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		n, err := parquetRows(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func parquetRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	return pf.NumRows(), nil
}
