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
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/yaml"

	"github.com/nosqlx/planexec/plan"
)

// DefaultPlanCacheSize is the number of
// prepared plans an Engine keeps by default.
const DefaultPlanCacheSize = 256

// Config controls how an Engine prepares and
// executes plans. The zero values of the limits
// mean "no limit".
type Config struct {
	// MaxMemoryBytes bounds the rows and
	// aggregate state buffered by memory-counting
	// iterators of one execution.
	MaxMemoryBytes int64 `json:"max_memory_bytes"`
	// SortRunSize is the run length of SORT2.
	SortRunSize int `json:"sort_run_size"`
	// PlanCacheSize is the number of prepared
	// plans kept by Engine.Prepare.
	PlanCacheSize int `json:"plan_cache_size"`
	// MaxFetches is the number of pages a
	// resumable execution may fetch before it
	// stops and hands out a continuation key.
	MaxFetches int `json:"max_fetches"`
	// TraceDecode logs every iterator
	// as it is decoded.
	TraceDecode bool `json:"trace_decode"`

	// Logger receives engine events.
	// A nil Logger discards them.
	Logger log.Logger `json:"-"`
	// Registerer, if non-nil, is where
	// the engine metrics are registered.
	Registerer prometheus.Registerer `json:"-"`
}

// DefaultConfig returns the configuration
// used when no configuration file is given.
func DefaultConfig() Config {
	return Config{
		SortRunSize:   plan.DefaultSortRunSize,
		PlanCacheSize: DefaultPlanCacheSize,
	}
}

// LoadConfig reads a YAML configuration file.
// Fields absent from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	return ParseConfig(buf)
}

// ParseConfig is LoadConfig on a buffer.
func ParseConfig(buf []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every limit is in range.
func (c *Config) Validate() error {
	switch {
	case c.MaxMemoryBytes < 0:
		return errors.Newf("max_memory_bytes must not be negative (got %d)", c.MaxMemoryBytes)
	case c.SortRunSize < 0:
		return errors.Newf("sort_run_size must not be negative (got %d)", c.SortRunSize)
	case c.PlanCacheSize < 0:
		return errors.Newf("plan_cache_size must not be negative (got %d)", c.PlanCacheSize)
	case c.MaxFetches < 0:
		return errors.Newf("max_fetches must not be negative (got %d)", c.MaxFetches)
	}
	return nil
}

func (c *Config) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}
