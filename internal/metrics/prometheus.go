// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the gatekeeper core.
var (
	// Counters.
	VotesCastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_votes_cast_total",
			Help: "Total number of votes accepted by the vote ledger",
		},
		[]string{"ballot"},
	)

	VotesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_votes_rejected_total",
			Help: "Total number of vote attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	VotesRetractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_votes_retracted_total",
			Help: "Total number of votes retracted",
		},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_decisions_total",
			Help: "Total number of application decisions, by outcome and trigger",
		},
		[]string{"outcome", "trigger"},
	)

	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_ratings_total",
			Help: "Total number of reputation ratings applied, by direction and action",
		},
		[]string{"direction", "action"},
	)

	RatingsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_ratings_rejected_total",
			Help: "Total number of rating attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	ExclusionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_exclusions_total",
			Help: "Total number of members excluded by the reputation policy",
		},
	)

	WhitelistSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_whitelist_sync_total",
			Help: "Total number of allow-list sync calls, by operation and status",
		},
		[]string{"operation", "status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_notifications_total",
			Help: "Total number of outcome notifications, by status",
		},
		[]string{"status"},
	)

	// Gauges.
	OpenApplications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_open_applications",
			Help: "Current number of applications accepting votes",
		},
	)

	EligibleVoters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_eligible_voters",
			Help: "Current number of users allowed to vote",
		},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_sweep_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last expiry sweep run",
		},
	)

	AmnestyLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_amnesty_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last amnesty decay run",
		},
	)

	// Histograms.
	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_sweep_duration_seconds",
			Help:    "Duration of expiry sweep runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)

	AmnestyDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_amnesty_duration_seconds",
			Help:    "Duration of amnesty decay runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_scheduler_job_runs_total",
			Help: "Total number of scheduler job runs, by job and status",
		},
		[]string{"job", "status"},
	)
)

// RecordVoteCast increments the accepted-vote counter.
func RecordVoteCast(ballot string) {
	VotesCastTotal.WithLabelValues(ballot).Inc()
}

// RecordVoteRejected increments the rejected-vote counter.
func RecordVoteRejected(reason string) {
	VotesRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordVoteRetracted increments the retracted-vote counter.
func RecordVoteRetracted() {
	VotesRetractedTotal.Inc()
}

// RecordDecision increments the decision counter.
func RecordDecision(outcome, trigger string) {
	DecisionsTotal.WithLabelValues(outcome, trigger).Inc()
}

// RecordRating increments the applied-rating counter.
func RecordRating(direction, action string) {
	RatingsTotal.WithLabelValues(direction, action).Inc()
}

// RecordRatingRejected increments the rejected-rating counter.
func RecordRatingRejected(reason string) {
	RatingsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordExclusion increments the exclusion counter.
func RecordExclusion() {
	ExclusionsTotal.Inc()
}

// RecordWhitelistSync records an allow-list sync attempt.
func RecordWhitelistSync(operation, status string) {
	WhitelistSyncTotal.WithLabelValues(operation, status).Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

// SetOpenApplications sets the open-application gauge.
func SetOpenApplications(count int) {
	OpenApplications.Set(float64(count))
}

// SetEligibleVoters sets the eligible-voter gauge.
func SetEligibleVoters(count int) {
	EligibleVoters.Set(float64(count))
}

// RecordSchedulerJobRun records a scheduler job outcome.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
}

// ObserveSweepDuration records the duration of an expiry sweep.
func ObserveSweepDuration(seconds float64) {
	SweepDurationSeconds.Observe(seconds)
	SweepLastRunTimestamp.Set(float64(time.Now().Unix()))
}

// ObserveAmnestyDuration records the duration of an amnesty run.
func ObserveAmnestyDuration(seconds float64) {
	AmnestyDurationSeconds.Observe(seconds)
	AmnestyLastRunTimestamp.Set(float64(time.Now().Unix()))
}
