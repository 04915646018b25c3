// Package adapter brings price series and remote step streams into the
// process.
package adapter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"adaptrader/internal/core"
)

var ErrNoPriceColumn = errors.New("no price column")

// PriceLoader reads price tables from local files or over HTTP.
type PriceLoader struct {
	client *resty.Client
}

func NewPriceLoader(timeout time.Duration) *PriceLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "text/csv")
	return &PriceLoader{client: client}
}

// LoadPrices loads src with a default loader.
func LoadPrices(ctx context.Context, src string) ([]float64, error) {
	return NewPriceLoader(0).Load(ctx, src)
}

// Load reads the price column of the CSV table at src, which is either a
// file path or an http(s) URL.
func (l *PriceLoader) Load(ctx context.Context, src string) ([]float64, error) {
	if isRemote(src) {
		resp, err := l.client.R().SetContext(ctx).Get(src)
		if err != nil {
			return nil, fmt.Errorf("fetch prices: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch prices: %s returned %s", src, resp.Status())
		}
		prices, err := ParsePrices(bytes.NewReader(resp.Body()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		return prices, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open prices: %w", err)
	}
	defer f.Close()
	prices, err := ParsePrices(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return prices, nil
}

func isRemote(src string) bool {
	s := strings.ToLower(src)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ParsePrices reads a CSV table whose header contains a "price" column
// (any case). Every row must hold a finite, non-negative number.
func ParsePrices(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, core.ErrEmptyPrices
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if strings.EqualFold(name, "price") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoPriceColumn
	}

	var prices []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if col >= len(rec) {
			return nil, fmt.Errorf("line %d: missing price field", line)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q", line, rec[col])
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, fmt.Errorf("line %d: price %v out of range", line, p)
		}
		prices = append(prices, p)
	}

	if len(prices) == 0 {
		return nil, core.ErrEmptyPrices
	}
	return prices, nil
}
