// Copyright 2025 Tom Barlow
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

package mi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontarget_mi_commands_total",
			Help: "Total MI commands written, by call mode",
		},
		[]string{"mode"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontarget_mi_records_total",
			Help: "Total MI records read from the debugger, by kind",
		},
		[]string{"kind"},
	)

	resultTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ontarget_mi_result_timeouts_total",
		Help: "Total blocking MI calls that timed out waiting for their result",
	})

	notificationsUnrouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ontarget_mi_notifications_unrouted_total",
		Help: "Total notify records with no matching subscriber",
	})

	callRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ontarget_mi_call_retries_total",
		Help: "Total MI calls retried after a transient invalid-hex-digit reply",
	})

	subscriberDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontarget_mi_subscriber_drops_total",
			Help: "Total records dropped from full subscriber queues, by subscriber",
		},
		[]string{"subscriber"},
	)
)
