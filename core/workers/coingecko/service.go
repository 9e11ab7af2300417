package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// DefaultFeedURL is the public Coingecko API base.
const DefaultFeedURL = "https://api.coingecko.com/api/v3"

// Service fetches hourly ERG/USD datapoints.
type Service struct {
	url  string
	http *http.Client
}

func NewService(url string) *Service {
	if url == "" {
		url = DefaultFeedURL
	}
	return &Service{url: url, http: &http.Client{}}
}

// Fetch returns datapoints strictly after since and up to until.
func (s *Service) Fetch(ctx context.Context, since, until types.Timestamp) ([]HourlyRecord, error) {
	url := fmt.Sprintf("%s/coins/ergo/market_chart/range?vs_currency=usd&from=%d&to=%d",
		s.url, since/1000, until/1000)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building feed request")
	}
	res, err := s.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying price feed")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("price feed returned status %d", res.StatusCode)
	}

	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "parsing price feed response")
	}

	var out []HourlyRecord
	for _, p := range payload.Prices {
		ts := types.Timestamp(p[0])
		if ts <= since {
			continue
		}
		out = append(out, HourlyRecord{Timestamp: ts, USD: p[1]})
	}
	return out, nil
}
