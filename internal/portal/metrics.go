/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package portal

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lavabit/magmad/internal/apperr"
)

// Metrics exposes counters for successful and failed RPC calls,
// labeled by method and — on failure — by symbolic error code, so an
// operator can see which methods are producing AuthThrottled or
// InternalError spikes without grepping logs.
type Metrics struct {
	calls  *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewMetrics registers the dispatcher's counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magmad",
			Subsystem: "portal",
			Name:      "calls_total",
			Help:      "Successful JSON-RPC calls, labeled by method.",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magmad",
			Subsystem: "portal",
			Name:      "errors_total",
			Help:      "Failed JSON-RPC calls, labeled by method and symbolic error code.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(m.calls, m.errors)
	return m
}

// ObserveSuccess records one successful call to method.
func (m *Metrics) ObserveSuccess(method string) {
	m.calls.WithLabelValues(method).Inc()
}

// ObserveError records one failed call to method, labeled by its
// symbolic error code.
func (m *Metrics) ObserveError(method string, err error) {
	code := string(apperr.InternalError)
	if ae, ok := err.(*apperr.Error); ok {
		code = string(ae.Code)
	}
	m.errors.WithLabelValues(method, code).Inc()
}
