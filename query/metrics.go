// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nosqlx/planexec/plan"
)

// metrics is the set of counters
// maintained by an Engine.
type metrics struct {
	executions   *prometheus.CounterVec
	rows         prometheus.Counter
	pages        prometheus.Counter
	readUnits    prometheus.Counter
	writeUnits   prometheus.Counter
	cacheLookups *prometheus.CounterVec
	cachedPlans  prometheus.Gauge
	execSeconds  prometheus.Histogram
}

// newMetrics creates the engine metrics and
// registers them with reg, which may be nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planexec_executions_total",
			Help: "Total number of plan executions by outcome",
		}, []string{"outcome"}),
		rows: f.NewCounter(prometheus.CounterOpts{
			Name: "planexec_rows_total",
			Help: "Total number of result rows produced",
		}),
		pages: f.NewCounter(prometheus.CounterOpts{
			Name: "planexec_pages_fetched_total",
			Help: "Total number of partition pages fetched",
		}),
		readUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "planexec_read_units_total",
			Help: "Total read units consumed by fetched pages",
		}),
		writeUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "planexec_write_units_total",
			Help: "Total write units consumed by fetched pages",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planexec_plan_cache_lookups_total",
			Help: "Total number of prepared plan cache lookups by result",
		}, []string{"result"}),
		cachedPlans: f.NewGauge(prometheus.GaugeOpts{
			Name: "planexec_cached_plans",
			Help: "Number of prepared plans in the cache",
		}),
		execSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "planexec_execution_seconds",
			Help: "Number of seconds from the start of an execution until its cursor is closed",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

const (
	outcomeStarted   = "started"
	outcomeFailed    = "failed"
	outcomeSuspended = "suspended"
	outcomeCompleted = "completed"
)

// finish records the totals of an execution.
func (m *metrics) finish(st *plan.ExecStats, rows int64, elapsed time.Duration) {
	m.rows.Add(float64(rows))
	m.pages.Add(float64(st.Fetches))
	m.readUnits.Add(float64(st.Consumed.ReadUnits))
	m.writeUnits.Add(float64(st.Consumed.WriteUnits))
	m.execSeconds.Observe(elapsed.Seconds())
}
