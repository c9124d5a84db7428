package telemetry

import (
	"sort"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Total is the aggregate value of one instrument across its attributes.
type Total struct {
	Name  string
	Value int64
}

// Totals sums every counter and counts every histogram in rm, sorted by
// instrument name.
func Totals(rm metricdata.ResourceMetrics) []Total {
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count) // #nosec G115 -- counts fit
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count) // #nosec G115 -- counts fit
				}
			}
		}
	}

	out := make([]Total, 0, len(sums))
	for name, v := range sums {
		out = append(out, Total{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
