// Package report renders finished sessions: HTML charts, summary tables
// and the live console feed.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/markcheno/go-talib"

	"adaptrader/internal/core"
	"adaptrader/internal/telemetry"
)

const DefaultSMAPeriod = 20

var ErrEmptyTrace = errors.New("empty trace")

// WriteHTML renders price (with an SMA overlay and fill markers), equity
// and drawdown charts for trace. smaPeriod <= 1 disables the overlay.
func WriteHTML(w io.Writer, trace []telemetry.StepEvent, smaPeriod int) error {
	if len(trace) == 0 {
		return ErrEmptyTrace
	}

	steps := make([]int, len(trace))
	prices := make([]float64, len(trace))
	equity := make([]opts.LineData, len(trace))
	drawdown := make([]opts.LineData, len(trace))
	for i, ev := range trace {
		steps[i] = ev.Step
		prices[i] = ev.Price
		equity[i] = opts.LineData{Value: ev.Equity}
		drawdown[i] = opts.LineData{Value: ev.Drawdown * 100}
	}

	page := components.NewPage()
	page.AddCharts(
		priceChart(trace, steps, prices, smaPeriod),
		simpleLine("Equity", steps, "Equity", equity),
		simpleLine("Drawdown (%)", steps, "Drawdown", drawdown),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func priceChart(trace []telemetry.StepEvent, steps []int, prices []float64, smaPeriod int) *charts.Line {
	line := newLine(fmt.Sprintf("Price (session %s)", trace[0].SessionID))

	priceData := make([]opts.LineData, len(prices))
	for i, p := range prices {
		priceData[i] = opts.LineData{Value: p}
	}
	line.SetXAxis(steps).AddSeries("Price", priceData)

	if smaPeriod > 1 && len(prices) >= smaPeriod {
		sma := talib.Sma(prices, smaPeriod)
		smaData := make([]opts.LineData, len(sma))
		for i, v := range sma {
			if i < smaPeriod-1 {
				smaData[i] = opts.LineData{Value: "-"}
				continue
			}
			smaData[i] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("SMA(%d)", smaPeriod), smaData)
	}

	buys, sells := fillMarkers(trace)
	markers := charts.NewScatter()
	markers.SetXAxis(steps).
		AddSeries("Buy", buys).
		AddSeries("Sell", sells)
	line.Overlap(markers)
	return line
}

// fillMarkers places a Buy or Sell point at the execution price of every
// step that traded. Refused buys and sells without inventory carry no fill
// and leave a gap.
func fillMarkers(trace []telemetry.StepEvent) (buys, sells []opts.ScatterData) {
	buys = make([]opts.ScatterData, len(trace))
	sells = make([]opts.ScatterData, len(trace))
	for i, ev := range trace {
		buys[i] = opts.ScatterData{Value: "-"}
		sells[i] = opts.ScatterData{Value: "-"}
		if ev.Fill == nil {
			continue
		}
		switch ev.Fill.Side {
		case core.Buy:
			buys[i] = opts.ScatterData{Value: ev.Fill.Price}
		case core.Sell:
			sells[i] = opts.ScatterData{Value: ev.Fill.Price}
		}
	}
	return buys, sells
}

func simpleLine(title string, steps []int, name string, data []opts.LineData) *charts.Line {
	line := newLine(title)
	line.SetXAxis(steps).AddSeries(name, data)
	return line
}

func newLine(title string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "340px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	return line
}
