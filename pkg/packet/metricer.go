package packet

import (
	"strconv"
	"time"
)

type Metric struct {
	Name   string
	Labels map[string]string
	Value  float64
	Time   time.Time
}

type Metricer interface {
	ToMetric() Metric
}

func portString(port uint32) string {
	return strconv.FormatUint(uint64(port), 10)
}
