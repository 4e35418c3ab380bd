package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

const (
	defaultBatchSize  = 3
	defaultBatchDelay = 200 * time.Millisecond
)

// FetchYearFunc fetches the historical data for a single year.
type FetchYearFunc func(ctx context.Context, year int) ([]types.HistoricalDay, error)

// BatchOptions controls a multi-year fetch. Years are requested newest-first
// starting at StartYear.
type BatchOptions struct {
	Years      int
	StartYear  int
	BatchSize  int
	BatchDelay time.Duration
}

// BatchResult aggregates a multi-year fetch. Data holds every year that
// succeeded, in requested-year order; per-year failures land in Errors instead
// of aborting the operation.
type BatchResult struct {
	Data           []types.HistoricalDay
	Errors         []types.YearError
	YearsRequested int
	YearsReceived  int
}

// FetchYears runs fetch for each requested year in sequential batches of
// BatchSize concurrent calls, pausing BatchDelay between batches (not after
// the last) as a courtesy to the rate-limited upstream. Results are collected
// positionally, so output order matches request order regardless of which
// goroutine finishes first.
func FetchYears(ctx context.Context, opts BatchOptions, fetch FetchYearFunc) *BatchResult {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaultBatchDelay
	}

	years := make([]int, 0, opts.Years)
	for i := 0; i < opts.Years; i++ {
		years = append(years, opts.StartYear-i)
	}

	perYearData := make([][]types.HistoricalDay, len(years))
	perYearErr := make([]error, len(years))

	for batchStart := 0; batchStart < len(years); batchStart += opts.BatchSize {
		batchEnd := batchStart + opts.BatchSize
		if batchEnd > len(years) {
			batchEnd = len(years)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				data, err := fetch(ctx, years[idx])
				if err != nil {
					perYearErr[idx] = err
					return
				}
				perYearData[idx] = data
			}(i)
		}
		wg.Wait()

		if batchEnd < len(years) {
			select {
			case <-ctx.Done():
				for i := batchEnd; i < len(years); i++ {
					perYearErr[i] = ctx.Err()
				}
				return assemble(years, perYearData, perYearErr)
			case <-time.After(opts.BatchDelay):
			}
		}
	}

	return assemble(years, perYearData, perYearErr)
}

func assemble(years []int, data [][]types.HistoricalDay, errs []error) *BatchResult {
	result := &BatchResult{YearsRequested: len(years)}
	for i, year := range years {
		if errs[i] != nil {
			result.Errors = append(result.Errors, types.YearError{
				Year:  year,
				Error: errs[i].Error(),
			})
			continue
		}
		result.Data = append(result.Data, data[i]...)
		result.YearsReceived++
	}
	return result
}

// FetchDateAcrossYears fetches the same calendar date (monthDay, "MM-DD") for
// the requested number of years, delegating to FetchYears so both the
// this-day-in-history lookup and climate-normal computation share one batching
// implementation. A date that does not exist in a given year (Feb 29 outside
// leap years) is recorded as that year's error.
func FetchDateAcrossYears(ctx context.Context, monthDay string, opts BatchOptions, fetchDate func(ctx context.Context, date string) ([]types.HistoricalDay, error)) (*BatchResult, error) {
	if _, err := time.Parse("01-02", monthDay); err != nil {
		return nil, fmt.Errorf("%w: invalid month-day %q, want MM-DD", types.ErrBadRequest, monthDay)
	}

	return FetchYears(ctx, opts, func(ctx context.Context, year int) ([]types.HistoricalDay, error) {
		date := fmt.Sprintf("%04d-%s", year, monthDay)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("date %s does not exist", date)
		}
		return fetchDate(ctx, date)
	}), nil
}
