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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/plan"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("max_memory_bytes: 4096\nmax_fetches: 3\ntrace_decode: true\n"))
	require.NoError(t, err)
	require.Equal(t, int64(4096), cfg.MaxMemoryBytes)
	require.Equal(t, 3, cfg.MaxFetches)
	require.True(t, cfg.TraceDecode)
	// defaults survive
	require.Equal(t, plan.DefaultSortRunSize, cfg.SortRunSize)
	require.Equal(t, DefaultPlanCacheSize, cfg.PlanCacheSize)
}

func TestParseConfigErrors(t *testing.T) {
	for _, text := range []string{
		"max_memory: 10\n",
		"max_memory_bytes: -1\n",
		"sort_run_size: -5\n",
		"plan_cache_size: -1\n",
		"max_fetches: -2\n",
		"max_fetches: lots\n",
	} {
		_, err := ParseConfig([]byte(text))
		require.Error(t, err, "%q", text)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sort_run_size: 16\nplan_cache_size: 0\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.SortRunSize)
	require.Zero(t, cfg.PlanCacheSize)

	e := newEngine(t, cfg)
	require.Nil(t, e.Cache())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
