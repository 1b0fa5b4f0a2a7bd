package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolStats is the slice of database pool state exported as gauges.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
}

var poolSource atomic.Pointer[func() PoolStats]

// ObservePool makes the pool gauges read from src. The latest call wins.
func ObservePool(src func() PoolStats) {
	poolSource.Store(&src)
}

func poolGauge(name, help string, pick func(PoolStats) int32) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "framecheck",
		Subsystem: "db_pool",
		Name:      name,
		Help:      help,
	}, func() float64 {
		src := poolSource.Load()
		if src == nil {
			return 0
		}
		return float64(pick((*src)()))
	})
}

var (
	_ = poolGauge("total_conns", "Open database connections", func(s PoolStats) int32 { return s.Total })
	_ = poolGauge("idle_conns", "Idle database connections", func(s PoolStats) int32 { return s.Idle })
	_ = poolGauge("acquired_conns", "Database connections in use", func(s PoolStats) int32 { return s.Acquired })
)
