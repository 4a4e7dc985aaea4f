// Package export dumps ledger records to parquet or JSONL files for
// offline analysis.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mealsnap/mealsnap/internal/scan"
	"github.com/parquet-go/parquet-go"
)

// row is the flattened parquet projection of a ScanRecord. Constituents
// are carried as a JSON column so the schema stays flat.
type row struct {
	ID                   string `parquet:"id"`
	UserID               string `parquet:"user_id"`
	ImageRef             string `parquet:"image_ref"`
	OverallFoodItem      string `parquet:"overall_food_item"`
	ConstituentsJSON     string `parquet:"constituent_food_items_json"`
	TotalWeightGrams     int64  `parquet:"total_weight_grams"`
	ConfidencePercentage int64  `parquet:"confidence_percentage"`
	CreatedAtUnixMS      int64  `parquet:"created_at_unix_ms"`
}

func toRow(rec scan.ScanRecord) (row, error) {
	constituents, err := json.Marshal(rec.ConstituentFoodItems)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal constituents: %w", err)
	}
	return row{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		ImageRef:             rec.ImageRef,
		OverallFoodItem:      rec.OverallFoodItem,
		ConstituentsJSON:     string(constituents),
		TotalWeightGrams:     int64(rec.TotalWeightGrams),
		ConfidencePercentage: int64(rec.ConfidencePercentage),
		CreatedAtUnixMS:      rec.CreatedAt.UnixMilli(),
	}, nil
}

func fromRow(r row) (scan.ScanRecord, error) {
	var constituents []scan.FoodItem
	if r.ConstituentsJSON != "" {
		if err := json.Unmarshal([]byte(r.ConstituentsJSON), &constituents); err != nil {
			return scan.ScanRecord{}, fmt.Errorf("failed to unmarshal constituents: %w", err)
		}
	}
	return scan.ScanRecord{
		ID:                   r.ID,
		UserID:               r.UserID,
		ImageRef:             r.ImageRef,
		OverallFoodItem:      r.OverallFoodItem,
		ConstituentFoodItems: constituents,
		TotalWeightGrams:     int(r.TotalWeightGrams),
		ConfidencePercentage: int(r.ConfidencePercentage),
		CreatedAt:            time.UnixMilli(r.CreatedAtUnixMS).UTC(),
	}, nil
}

// Write picks the output format from the file extension (.parquet, .jsonl
// or .json).
func Write(path string, records []scan.ScanRecord) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".parquet":
		return WriteParquet(path, records)
	case ".jsonl", ".json":
		return WriteJSONL(path, records)
	default:
		return fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
}

// WriteParquet writes records to a parquet file.
func WriteParquet(path string, records []scan.ScanRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[row](file)
	for _, rec := range records {
		r, err := toRow(rec)
		if err != nil {
			return err
		}
		if _, err := writer.Write([]row{r}); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	slog.Info("ledger exported", "path", path, "records", len(records), "format", "parquet")
	return nil
}

// ReadParquet loads records back from a parquet export.
func ReadParquet(path string) ([]scan.ScanRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[row](pf)
	defer reader.Close()

	var records []scan.ScanRecord
	rows := make([]row, 64)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			rec, convErr := fromRow(rows[i])
			if convErr != nil {
				return nil, convErr
			}
			records = append(records, rec)
		}
		if err != nil {
			break
		}
	}
	return records, nil
}

// WriteJSONL writes one JSON record per line.
func WriteJSONL(path string, records []scan.ScanRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSONL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush JSONL file: %w", err)
	}

	slog.Info("ledger exported", "path", path, "records", len(records), "format", "jsonl")
	return nil
}
