package health

import (
	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// Compute builds the detailed health report at the Checker's configured
// detail level. Aggregate status is healthy only if every configured
// upstream is Ready; degraded if any upstream is not Ready or none are
// configured at all; unhealthy if the initial configuration load never
// succeeded.
func (c *Checker) Compute() Report {
	c.mu.RLock()
	configLoaded := c.configLoaded
	configErr := c.configErr
	c.mu.RUnlock()

	statuses := c.statuses()

	report := Report{DetailLevel: c.detail}

	switch {
	case !configLoaded:
		report.Status = Unhealthy
	case len(statuses) == 0:
		report.Status = Degraded
	default:
		report.Status = Healthy
		for _, st := range statuses {
			if st.State != upstream.Ready {
				report.Status = Degraded
				break
			}
		}
	}

	if configErr != nil {
		report.ConfigError = logging.Sanitize(configErr.Error())
	}

	if c.detail == DetailMinimal {
		return report
	}

	report.Servers = make(map[string]ServerStatus, len(statuses))
	for name, st := range statuses {
		entry := ServerStatus{State: st.State.String()}
		if c.detail == DetailFull {
			entry.RetryCount = st.RetryCount
			entry.AuthorizationURL = st.AuthorizationURL
			if st.LastError != nil {
				entry.Error = logging.Sanitize(st.LastError.Error())
			}
		}
		report.Servers[name] = entry
	}
	return report
}
