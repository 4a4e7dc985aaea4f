package export

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mealsnap/mealsnap/internal/scan"
)

func sampleRecords() []scan.ScanRecord {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return []scan.ScanRecord{
		scan.NewScanRecord("rec_1", "u_123", "mem://rec_1", scan.AnalysisResult{
			OverallFoodItem:      "Apple",
			ConstituentFoodItems: []scan.FoodItem{{Name: "Apple", WeightGrams: 182}},
			TotalWeightGrams:     182,
			ConfidencePercentage: 91,
		}, base),
		scan.NewScanRecord("rec_2", "u_456", "mem://rec_2", scan.AnalysisResult{
			OverallFoodItem:      "Mystery stew",
			ConfidencePercentage: 10,
		}, base.Add(time.Minute)),
	}
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.parquet")
	records := sampleRecords()

	if err := Write(path, records); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if !got[i].CreatedAt.Equal(records[i].CreatedAt) {
			t.Errorf("record %d created_at = %v, want %v", i, got[i].CreatedAt, records[i].CreatedAt)
		}
		got[i].CreatedAt = records[i].CreatedAt
		if !reflect.DeepEqual(got[i], records[i]) {
			t.Errorf("record %d mismatch:\ngot:  %+v\nwant: %+v", i, got[i], records[i])
		}
	}
}

func TestWriteRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.csv")
	if err := Write(path, sampleRecords()); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
