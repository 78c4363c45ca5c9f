package report

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// statsSchema describes one summary row per converted comic. Write calls
// must pass values typed to match: string, int64 and float64 columns.
var statsSchema = []string{
	"name=name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
	"name=output_path, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
	"name=original_bytes, type=INT64",
	"name=compressed_bytes, type=INT64",
	"name=savings_percent, type=DOUBLE",
	"name=images_processed, type=INT64",
	"name=images_skipped, type=INT64",
	"name=duration_ms, type=INT64",
}

// WriteParquet exports the summary rows to a snappy-compressed parquet
// file at path. Failed conversions have no size figures and are not
// exported.
func WriteParquet(path string, s Summary) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet %s: %w", path, err)
	}
	pw, err := writer.NewCSVWriter(statsSchema, fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("init parquet writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range s.Rows {
		rec := []interface{}{
			r.Name,
			r.OutputPath,
			r.OriginalBytes,
			r.CompressedBytes,
			r.SavingsPercent,
			int64(r.ImagesProcessed),
			int64(r.ImagesSkipped),
			r.Duration.Milliseconds(),
		}
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("write parquet row for %s: %w", r.Name, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet %s: %w", path, err)
	}
	return nil
}
