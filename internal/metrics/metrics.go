// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics publishes block-cache and inode-cache lookup counters,
// grounded on the teacher's common.otelMetrics: one
// package-level meter, counters built once at init, a noop fallback when
// OpenTelemetry setup fails.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	cacheNameKey = "cache"
	hitKey       = "hit"
)

var (
	meter = otel.Meter("xv6")
	bgCtx = context.Background()

	bcacheOps metric.Int64Counter
	icacheOps metric.Int64Counter

	bcacheHitSet  = metric.WithAttributeSet(attribute.NewSet(attribute.String(cacheNameKey, "bcache"), attribute.Bool(hitKey, true)))
	bcacheMissSet = metric.WithAttributeSet(attribute.NewSet(attribute.String(cacheNameKey, "bcache"), attribute.Bool(hitKey, false)))
	icacheHitSet  = metric.WithAttributeSet(attribute.NewSet(attribute.String(cacheNameKey, "icache"), attribute.Bool(hitKey, true)))
	icacheMissSet = metric.WithAttributeSet(attribute.NewSet(attribute.String(cacheNameKey, "icache"), attribute.Bool(hitKey, false)))
)

func init() {
	var err error
	bcacheOps, err = meter.Int64Counter("cache/lookup_count",
		metric.WithDescription("The cumulative number of cache lookups, by cache and hit/miss."))
	if err != nil {
		bcacheOps = noopCounter{}
	}
	icacheOps = bcacheOps
}

// noopCounter swallows Add calls; used only if meter construction fails,
// mirroring the teacher's fallback to a no-op MetricHandle.
type noopCounter struct{ metric.Int64Counter }

func (noopCounter) Add(context.Context, int64, ...metric.AddOption) {}

// BcacheHit records a block-cache lookup that found an already-cached
// buffer.
func BcacheHit() { bcacheOps.Add(bgCtx, 1, bcacheHitSet) }

// BcacheMiss records a block-cache lookup that had to recycle a buffer.
func BcacheMiss() { bcacheOps.Add(bgCtx, 1, bcacheMissSet) }

// IcacheHit records an inode-cache lookup that found an already-cached
// inode.
func IcacheHit() { icacheOps.Add(bgCtx, 1, icacheHitSet) }

// IcacheMiss records an inode-cache lookup that had to recycle a slot.
func IcacheMiss() { icacheOps.Add(bgCtx, 1, icacheMissSet) }
