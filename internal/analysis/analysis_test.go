package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mealsnap/mealsnap/internal/providers"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// fakeProvider returns a canned response, optionally after a delay.
type fakeProvider struct {
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeProvider) DescribeFood(ctx context.Context, config providers.Config) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

const appleJSON = `{
	"overall_food_item": "Apple",
	"constituent_food_items": [{"name": "Apple", "weight_grams": 182}],
	"total_weight_grams": 182,
	"confidence_percentage": 91
}`

func TestAnalyzeSuccess(t *testing.T) {
	o := New(&fakeProvider{response: appleJSON})

	result, err := o.Analyze(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.OverallFoodItem != "Apple" {
		t.Errorf("item = %q, want Apple", result.OverallFoodItem)
	}
	if result.TotalWeightGrams != 182 || result.ConfidencePercentage != 91 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.ConstituentFoodItems) != 1 || result.ConstituentFoodItems[0].WeightGrams != 182 {
		t.Errorf("unexpected constituents: %+v", result.ConstituentFoodItems)
	}
}

func TestAnalyzeStripsMarkdownFences(t *testing.T) {
	o := New(&fakeProvider{response: "Here is the analysis:\n```json\n" + appleJSON + "\n```\nHope that helps!"})

	result, err := o.Analyze(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.OverallFoodItem != "Apple" {
		t.Errorf("item = %q, want Apple", result.OverallFoodItem)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	o := New(&fakeProvider{response: appleJSON, delay: time.Second}, WithTimeout(10*time.Millisecond))

	_, err := o.Analyze(context.Background(), []byte("img"))
	if !errors.Is(err, scan.ErrAnalysisTimeout) {
		t.Fatalf("expected ErrAnalysisTimeout, got %v", err)
	}
}

func TestAnalyzeSingleFlight(t *testing.T) {
	provider := &fakeProvider{response: appleJSON, delay: 200 * time.Millisecond}
	o := New(provider)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := o.Analyze(context.Background(), []byte("img"))
		done <- err
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	if _, err := o.Analyze(context.Background(), []byte("img")); !errors.Is(err, scan.ErrAnalysisAlreadyInFlight) {
		t.Fatalf("second analyze: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first analyze: %v", err)
	}

	// Released after completion.
	if _, err := o.Analyze(context.Background(), []byte("img")); err != nil {
		t.Fatalf("analyze after release: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  scan.AnalysisResult
		wantErr bool
	}{
		{
			name: "valid",
			result: scan.AnalysisResult{
				OverallFoodItem:      "Apple",
				ConstituentFoodItems: []scan.FoodItem{{Name: "Apple", WeightGrams: 182}},
				TotalWeightGrams:     182,
				ConfidencePercentage: 91,
			},
		},
		{
			name: "total not matching sum is advisory only",
			result: scan.AnalysisResult{
				OverallFoodItem:      "Salad",
				ConstituentFoodItems: []scan.FoodItem{{Name: "Lettuce", WeightGrams: 50}},
				TotalWeightGrams:     400,
				ConfidencePercentage: 70,
			},
		},
		{
			name:   "overall item only",
			result: scan.AnalysisResult{OverallFoodItem: "Mystery stew", ConfidencePercentage: 10},
		},
		{
			name:    "negative total weight",
			result:  scan.AnalysisResult{OverallFoodItem: "Apple", TotalWeightGrams: -1, ConfidencePercentage: 50},
			wantErr: true,
		},
		{
			name:    "confidence above 100",
			result:  scan.AnalysisResult{OverallFoodItem: "Apple", ConfidencePercentage: 101},
			wantErr: true,
		},
		{
			name:    "confidence below 0",
			result:  scan.AnalysisResult{OverallFoodItem: "Apple", ConfidencePercentage: -3},
			wantErr: true,
		},
		{
			name:    "no information at all",
			result:  scan.AnalysisResult{ConfidencePercentage: 50},
			wantErr: true,
		},
		{
			name: "negative constituent weight",
			result: scan.AnalysisResult{
				OverallFoodItem:      "Apple",
				ConstituentFoodItems: []scan.FoodItem{{Name: "Apple", WeightGrams: -5}},
				ConfidencePercentage: 50,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.result)
			if tt.wantErr && !errors.Is(err, scan.ErrInvalidAnalysisResponse) {
				t.Errorf("expected ErrInvalidAnalysisResponse, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseResultGarbage(t *testing.T) {
	_, err := ParseResult("the model refused to answer")
	if !errors.Is(err, scan.ErrInvalidAnalysisResponse) {
		t.Fatalf("expected ErrInvalidAnalysisResponse, got %v", err)
	}
}

func TestOptimizerApplied(t *testing.T) {
	provider := &fakeProvider{response: appleJSON}
	var seen int
	o := New(provider, WithOptimizer(func(img []byte) []byte {
		seen = len(img)
		return img[:1]
	}))

	if _, err := o.Analyze(context.Background(), []byte("big-image")); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if seen != len("big-image") {
		t.Errorf("optimizer saw %d bytes, want %d", seen, len("big-image"))
	}
}
