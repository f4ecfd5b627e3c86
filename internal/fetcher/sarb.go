package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarbstats/econ-cli/internal/model"
)

// Series describes one upstream time series and how it maps onto our
// indicator schema.
type Series struct {
	Code     string // upstream series code in the web-indicators API
	Name     string // our indicator name
	Category string
	Unit     string
	Source   string
}

// TargetSeries lists the series the pipeline tracks, keyed to the SARB
// web-indicators download codes.
var TargetSeries = []Series{
	{Code: "KBP6006D", Name: model.IndicatorGDPGrowth, Category: "Economic Growth", Unit: "Percentage", Source: "SARB"},
	{Code: "KBP7170N", Name: model.IndicatorInflation, Category: "Price Stability", Unit: "Percentage", Source: "SARB"},
	{Code: "KBP1403W", Name: model.IndicatorPrimeRate, Category: "Monetary Policy", Unit: "Percentage", Source: "SARB"},
	{Code: "KBP7019Q", Name: model.IndicatorUnemployment, Category: "Employment", Unit: "Percentage", Source: "StatsSA"},
	{Code: "KBP5339M", Name: model.IndicatorUSDZAR, Category: "Exchange Rates", Unit: "ZAR per USD", Source: "SARB"},
	{Code: "KBP4420Q", Name: model.IndicatorDebtGDP, Category: "Fiscal Policy", Unit: "Percentage", Source: "National Treasury"},
	{Code: "KBP5007Q", Name: model.IndicatorCurrentAccount, Category: "External Balance", Unit: "Percentage of GDP", Source: "SARB"},
	{Code: "ABSAPMI", Name: model.IndicatorPMI, Category: "Business Activity", Unit: "Index", Source: "Bureau for Economic Research"},
}

// sarbObservation is one point in the web-indicators JSON response.
type sarbObservation struct {
	Period string `json:"Period"`
	Value  string `json:"Value"`
}

// SARBClient fetches indicator observations from the SARB web API.
type SARBClient struct {
	fetcher     Fetcher
	baseURL     string
	concurrency int
}

// NewSARBClient creates a client over the given fetcher and base URL.
func NewSARBClient(f Fetcher, baseURL string, concurrency int) *SARBClient {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SARBClient{fetcher: f, baseURL: baseURL, concurrency: concurrency}
}

// FetchAll downloads every target series concurrently and flattens the
// results into observations. A series that fails to download is skipped
// with a warning so the remaining indicators still land.
func (c *SARBClient) FetchAll(ctx context.Context) ([]model.Observation, error) {
	log := zap.L().With(zap.String("component", "fetcher.sarb"))

	var mu sync.Mutex
	var all []model.Observation

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, series := range TargetSeries {
		series := series
		g.Go(func() error {
			obs, err := c.fetchSeries(gctx, series)
			if err != nil {
				log.Warn("skip series", zap.String("code", series.Code), zap.Error(err))
				return nil
			}
			mu.Lock()
			all = append(all, obs...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic batch order regardless of download interleaving.
	sort.Slice(all, func(i, j int) bool {
		if all[i].IndicatorName != all[j].IndicatorName {
			return all[i].IndicatorName < all[j].IndicatorName
		}
		return all[i].ObservedDate.Before(all[j].ObservedDate)
	})

	log.Info("fetched series", zap.Int("observations", len(all)))
	return all, nil
}

func (c *SARBClient) fetchSeries(ctx context.Context, series Series) ([]model.Observation, error) {
	url := fmt.Sprintf("%s/GetTimeSeriesObservations/%s", c.baseURL, series.Code)

	body, err := c.fetcher.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "sarb: read series %s", series.Code)
	}

	var raw []sarbObservation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "sarb: decode series %s", series.Code)
	}

	var out []model.Observation
	for _, r := range raw {
		date, err := parseDate(r.Period)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(r.Value, 64)
		if err != nil {
			// Upstream marks missing periods with a non-numeric token.
			continue
		}
		out = append(out, model.Observation{
			IndicatorName: series.Name,
			Category:      series.Category,
			Value:         &v,
			Unit:          series.Unit,
			ObservedDate:  date,
			Source:        series.Source,
		})
	}
	return out, nil
}

// parseDate accepts the date layouts the SARB API emits.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("sarb: unparseable date %q", s)
}
