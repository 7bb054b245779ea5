package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	LinkAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mchub_link_attempts_total",
		Help: "Total number of account link attempts, by provider.",
	}, []string{"provider"})

	LinkSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mchub_link_success_total",
		Help: "Total number of persisted account links, by provider.",
	}, []string{"provider"})

	LinkFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mchub_link_failures_total",
		Help: "Total number of failed link attempts, by provider and error kind.",
	}, []string{"provider", "kind"})
)

// Register registers the linking metrics with the given registerer. It
// should be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register linking metrics")
		return
	}
	for _, c := range []prometheus.Collector{LinkAttemptsTotal, LinkSuccessTotal, LinkFailuresTotal} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register linking metric")
		}
	}
	log.Info().Msg("Linking metrics registered.")
}
