package ga4

import (
	"math"
	"strconv"
)

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type dimension struct {
	Name string `json:"name"`
}

type metric struct {
	Name string `json:"name"`
}

type orderBy struct {
	Metric    *metricOrderBy    `json:"metric,omitempty"`
	Dimension *dimensionOrderBy `json:"dimension,omitempty"`
	Desc      bool              `json:"desc,omitempty"`
}

type metricOrderBy struct {
	MetricName string `json:"metricName"`
}

type dimensionOrderBy struct {
	DimensionName string `json:"dimensionName"`
}

type inListFilter struct {
	Values []string `json:"values"`
}

type fieldFilter struct {
	FieldName    string        `json:"fieldName"`
	InListFilter *inListFilter `json:"inListFilter,omitempty"`
}

type filterExpression struct {
	Filter *fieldFilter `json:"filter,omitempty"`
}

// reportRequest is the runReport request body
type reportRequest struct {
	DateRanges      []dateRange       `json:"dateRanges"`
	Dimensions      []dimension       `json:"dimensions,omitempty"`
	Metrics         []metric          `json:"metrics"`
	DimensionFilter *filterExpression `json:"dimensionFilter,omitempty"`
	OrderBys        []orderBy         `json:"orderBys,omitempty"`
	Limit           string            `json:"limit,omitempty"`
}

type value struct {
	Value string `json:"value"`
}

type row struct {
	DimensionValues []value `json:"dimensionValues"`
	MetricValues    []value `json:"metricValues"`
}

// reportResponse is the subset of the runReport response that is read
type reportResponse struct {
	Rows     []row `json:"rows"`
	RowCount int   `json:"rowCount"`
}

func (r row) dim(i int) string {
	if i < 0 || i >= len(r.DimensionValues) {
		return ""
	}
	return r.DimensionValues[i].Value
}

func (r row) number(i int) float64 {
	if i < 0 || i >= len(r.MetricValues) {
		return 0
	}
	f, err := strconv.ParseFloat(r.MetricValues[i].Value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func (r row) count(i int) int64 {
	f := r.number(i)
	if f < 0 {
		return 0
	}
	return int64(math.Round(f))
}

func metricList(names ...string) []metric {
	out := make([]metric, len(names))
	for i, n := range names {
		out[i] = metric{Name: n}
	}
	return out
}

func dimensionList(names ...string) []dimension {
	out := make([]dimension, len(names))
	for i, n := range names {
		out[i] = dimension{Name: n}
	}
	return out
}

func byMetricDesc(name string) []orderBy {
	return []orderBy{{Metric: &metricOrderBy{MetricName: name}, Desc: true}}
}

func byDimension(name string) []orderBy {
	return []orderBy{{Dimension: &dimensionOrderBy{DimensionName: name}}}
}
