package telemetry

import (
	"context"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelComponent  = "component"
	ProfilingLabelOperation  = "operation"
)

// Ledger components used as profiling label values
const (
	ComponentInvoices   = "invoices"
	ComponentClaims     = "claims"
	ComponentPayments   = "payments"
	ComponentStatistics = "statistics"
)

// MaxLabelValueLength caps label values
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped: one series per invoice or request
// would swamp the profile store
var highCardinalityLabels = map[string]bool{
	"invoice_id": true,
	"claim_id":   true,
	"payment_id": true,
	"patient_id": true,
	"request_id": true,
	"trace_id":   true,
	"span_id":    true,
}

// WithProfilingLabels runs fn with pprof labels attached, so Pyroscope can
// slice CPU and allocation profiles by route or ledger operation
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// labelPairs returns sorted key/value pairs with empty, high-cardinality and
// malformed keys removed and long values truncated
func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		v := labels[k]
		key := labelKey(k)
		if key == "" || v == "" || highCardinalityLabels[key] {
			continue
		}
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, key, v)
	}
	return pairs
}

// labelKey lower-cases k to snake_case and drops anything else
func labelKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}

// HTTPRequestLabels labels a request by handler, route pattern and method
func HTTPRequestLabels(controller, route, method string) map[string]string {
	return map[string]string{
		ProfilingLabelController: controller,
		ProfilingLabelRoute:      route,
		ProfilingLabelMethod:     method,
	}
}

// BillingOperationLabels labels a ledger command or query
func BillingOperationLabels(component, operation string) map[string]string {
	return map[string]string{
		ProfilingLabelComponent: component,
		ProfilingLabelOperation: operation,
	}
}
