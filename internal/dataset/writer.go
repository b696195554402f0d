package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// WriteJSONL writes one JSON object per line.
func WriteJSONL(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// parquetRow is the flat parquet form of a Record. Nested fields are stored
// as JSON strings.
type parquetRow struct {
	ID          int64  `parquet:"name=id, type=INT64"`
	GroundTruth string `parquet:"name=ground_truth, type=BYTE_ARRAY, convertedtype=UTF8"`
	Molecules   string `parquet:"name=molecules, type=BYTE_ARRAY, convertedtype=UTF8"`
	Messages    string `parquet:"name=messages, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toParquetRow(rec Record) (parquetRow, error) {
	mols, err := json.Marshal(rec.Molecules)
	if err != nil {
		return parquetRow{}, err
	}
	msgs, err := json.Marshal(rec.Messages)
	if err != nil {
		return parquetRow{}, err
	}
	return parquetRow{
		ID:          int64(rec.ID),
		GroundTruth: rec.GroundTruth,
		Molecules:   string(mols),
		Messages:    string(msgs),
	}, nil
}

// WriteParquet writes records as a SNAPPY-compressed parquet file.
func WriteParquet(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	pfw := writerfile.NewWriterFile(f)

	pw, err := writer.NewParquetWriter(pfw, new(parquetRow), 4)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row, err := toParquetRow(rec)
		if err != nil {
			_ = pw.WriteStop()
			_ = f.Close()
			return fmt.Errorf("encode record %d: %w", rec.ID, err)
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteResult writes every split of res to outputDir as <split>.jsonl and,
// when withParquet is set, <split>.parquet. It returns the written paths.
func WriteResult(outputDir string, res *Result, withParquet bool) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for _, split := range Splits {
		records := res.Splits[split]

		p := filepath.Join(outputDir, split+".jsonl")
		if err := WriteJSONL(p, records); err != nil {
			return paths, err
		}
		paths = append(paths, p)

		if withParquet {
			p = filepath.Join(outputDir, split+".parquet")
			if err := WriteParquet(p, records); err != nil {
				return paths, err
			}
			paths = append(paths, p)
		}
	}
	return paths, nil
}
