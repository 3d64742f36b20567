package obs

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Kassenwerk API build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo registers the build_info gauge once and sets it to 1 with the
// given labels.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// CanonicalPath collapses entity identifiers in request paths so metric
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// /v1/<collection>/<id>[/<action>] -> /v1/<collection>/:id[/<action>]
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "projects", "transactions", "donors", "categories", "teams",
			"users", "reimbursements", "allowances", "shared":
			parts[2] = ":id"
			if len(parts) > 4 {
				return path
			}
			return "/" + strings.Join(parts, "/")
		}
	}
	return path
}
