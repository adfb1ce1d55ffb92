// Copyright 2024-2026 The Rabc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rabc_lifecycle_operations_total",
		Help: "Lifecycle operations processed, partitioned by action and outcome.",
	}, []string{"action", "outcome"})

	issuanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rabc_credential_issuance_duration_seconds",
		Help:    "Time spent issuing a credential bundle, approval and signing wait included.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	revokedBindings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rabc_revoked_bindings_total",
		Help: "Bindings revoked by disable and delete operations.",
	})
)

func observeOperation(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	lifecycleOperations.WithLabelValues(action, outcome).Inc()
}
