package google

import (
	"context"
	"strconv"
)

// DateRange uses YYYY-MM-DD dates, or GA4 relative values like "28daysAgo".
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// ReportRequest is a GA4 Data API runReport call.
type ReportRequest struct {
	Property   string
	DateRange  DateRange
	Metrics    []string
	Dimensions []string
	Limit      int
}

// ReportRow holds one row of dimension and metric values in header order.
type ReportRow struct {
	Dimensions []string `json:"dimensions"`
	Metrics    []string `json:"metrics"`
}

// Report is the flattened result of runReport.
type Report struct {
	DimensionHeaders []string    `json:"dimensionHeaders"`
	MetricHeaders    []string    `json:"metricHeaders"`
	Rows             []ReportRow `json:"rows"`
	RowCount         int         `json:"rowCount"`
}

// Metric returns the numeric value of a metric in row i, or 0.
func (r *Report) Metric(i int, name string) float64 {
	if i < 0 || i >= len(r.Rows) {
		return 0
	}
	for j, h := range r.MetricHeaders {
		if h == name && j < len(r.Rows[i].Metrics) {
			v, _ := strconv.ParseFloat(r.Rows[i].Metrics[j], 64)
			return v
		}
	}
	return 0
}

type named struct {
	Name string `json:"name"`
}

type value struct {
	Value string `json:"value"`
}

type runReportBody struct {
	DateRanges []DateRange `json:"dateRanges"`
	Dimensions []named     `json:"dimensions,omitempty"`
	Metrics    []named     `json:"metrics"`
	Limit      int         `json:"limit,omitempty"`
}

type runReportResponse struct {
	DimensionHeaders []named `json:"dimensionHeaders"`
	MetricHeaders    []named `json:"metricHeaders"`
	Rows             []struct {
		DimensionValues []value `json:"dimensionValues"`
		MetricValues    []value `json:"metricValues"`
	} `json:"rows"`
	RowCount int `json:"rowCount"`
}

func toNamed(names []string) []named {
	out := make([]named, len(names))
	for i, n := range names {
		out[i] = named{Name: n}
	}
	return out
}

func headerNames(h []named) []string {
	out := make([]string, len(h))
	for i, n := range h {
		out[i] = n.Name
	}
	return out
}

// RunReport runs a GA4 report for the property.
func (c *Client) RunReport(ctx context.Context, token string, rr ReportRequest) (*Report, error) {
	body := runReportBody{
		DateRanges: []DateRange{rr.DateRange},
		Dimensions: toNamed(rr.Dimensions),
		Metrics:    toNamed(rr.Metrics),
		Limit:      rr.Limit,
	}

	var raw runReportResponse
	req := c.http.R(ctx).SetAuthToken(token).SetBody(body)
	url := c.ep.AnalyticsData + "/" + PropertyName(rr.Property) + ":runReport"
	if _, err := c.http.Post(req, "run_report", url, &raw); err != nil {
		return nil, err
	}

	report := &Report{
		DimensionHeaders: headerNames(raw.DimensionHeaders),
		MetricHeaders:    headerNames(raw.MetricHeaders),
		Rows:             make([]ReportRow, 0, len(raw.Rows)),
		RowCount:         raw.RowCount,
	}
	for _, row := range raw.Rows {
		r := ReportRow{
			Dimensions: make([]string, len(row.DimensionValues)),
			Metrics:    make([]string, len(row.MetricValues)),
		}
		for i, v := range row.DimensionValues {
			r.Dimensions[i] = v.Value
		}
		for i, v := range row.MetricValues {
			r.Metrics[i] = v.Value
		}
		report.Rows = append(report.Rows, r)
	}
	return report, nil
}
