package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	AccessTokensIssuedTotal      prometheus.Counter
	GrantsExchangedTotal         prometheus.Counter
	RefreshRotationsTotal        prometheus.Counter
	InvalidTargetRejectionsTotal prometheus.Counter
	LogoutDispatchesTotal        prometheus.Counter
	LogoutDispatchFailuresTotal  prometheus.Counter
)

// InitCustomMetrics initializes and registers the authorization-server
// metrics. Call once at startup; a nil registerer leaves the counters
// usable but unregistered (tests).
func InitCustomMetrics(reg prometheus.Registerer) {
	AccessTokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_access_tokens_issued_total",
		Help: "Total number of access tokens issued across all grant types.",
	})
	GrantsExchangedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_grants_exchanged_total",
		Help: "Total number of authorization codes exchanged for tokens.",
	})
	RefreshRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_refresh_rotations_total",
		Help: "Total number of refresh token rotations.",
	})
	InvalidTargetRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_invalid_target_rejections_total",
		Help: "Total number of requests rejected for resource escalation or audience mismatch.",
	})
	LogoutDispatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_backchannel_logout_dispatches_total",
		Help: "Total number of backchannel logout tokens dispatched.",
	})
	LogoutDispatchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_backchannel_logout_failures_total",
		Help: "Total number of failed backchannel logout dispatches.",
	})

	if reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		AccessTokensIssuedTotal,
		GrantsExchangedTotal,
		RefreshRotationsTotal,
		InvalidTargetRejectionsTotal,
		LogoutDispatchesTotal,
		LogoutDispatchFailuresTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}

func init() {
	// Counters must be non-nil even when InitCustomMetrics is never called.
	InitCustomMetrics(nil)
}
