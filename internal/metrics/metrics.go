// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package metrics defines the Prometheus instrumentation for Dumpvault.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeBusy    = "busy"
)

var (
	// Backup pipeline metrics
	BackupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_backup_jobs_total",
			Help: "Total number of backup operations by operation and outcome",
		},
		[]string{"operation", "outcome"}, // create, compress, verify, restore, cleanup, deliver
	)

	BackupJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dumpvault_backup_job_duration_seconds",
			Help:    "Duration of backup operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"operation"},
	)

	BackupLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dumpvault_job_lock_contention_total",
			Help: "Total number of operations rejected because another job held the lock",
		},
	)

	BackupJobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dumpvault_job_running",
			Help: "1 while a job holds the global job lock",
		},
	)

	BackupLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dumpvault_backup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup creation",
		},
	)

	VerificationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_verification_results_total",
			Help: "Total number of verification results by status",
		},
		[]string{"status"},
	)

	// Artifact store metrics
	ArtifactsCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dumpvault_artifacts",
			Help: "Number of backup artifacts in the store",
		},
	)

	ArtifactsBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dumpvault_artifacts_bytes",
			Help: "Total size of backup artifacts in bytes",
		},
	)

	CleanupRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dumpvault_cleanup_removed_total",
			Help: "Total number of artifacts removed by retention cleanup",
		},
	)

	// Process runner metrics
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dumpvault_process_duration_seconds",
			Help:    "Duration of external tool invocations in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"command", "outcome"},
	)

	// Delivery metrics
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_delivery_attempts_total",
			Help: "Total number of delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	DeliveryCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dumpvault_delivery_circuit_state",
			Help: "Delivery circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"channel"},
	)

	// Scheduler metrics
	ScheduleFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_schedule_fires_total",
			Help: "Total number of scheduled job executions by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	ScheduleNextFire = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dumpvault_schedule_next_fire_timestamp_seconds",
			Help: "Unix timestamp of the next planned execution per scheduled job",
		},
		[]string{"job"},
	)

	// Event publishing metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_events_published_total",
			Help: "Total number of lifecycle events published by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dumpvault_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dumpvault_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// outcomeOf maps an error to an outcome label.
func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordBackupJob records one orchestrator operation.
func RecordBackupJob(operation string, duration time.Duration, err error) {
	BackupJobsTotal.WithLabelValues(operation, outcomeOf(err)).Inc()
	BackupJobDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLockContention records an operation rejected by the job lock.
func RecordLockContention(operation string) {
	BackupLockContention.Inc()
	BackupJobsTotal.WithLabelValues(operation, OutcomeBusy).Inc()
}

// SetJobRunning flips the job-running gauge.
func SetJobRunning(running bool) {
	if running {
		BackupJobRunning.Set(1)
		return
	}
	BackupJobRunning.Set(0)
}

// RecordBackupSuccess stamps the last successful backup time.
func RecordBackupSuccess(at time.Time) {
	BackupLastSuccess.Set(float64(at.Unix()))
}

// RecordVerification records a verification result.
func RecordVerification(status string) {
	VerificationResults.WithLabelValues(status).Inc()
}

// SetArtifactTotals updates the store gauges.
func SetArtifactTotals(count int, bytes int64) {
	ArtifactsCount.Set(float64(count))
	ArtifactsBytes.Set(float64(bytes))
}

// RecordCleanup records artifacts removed by cleanup.
func RecordCleanup(removed int) {
	CleanupRemovedTotal.Add(float64(removed))
}

// RecordProcess records an external process invocation.
func RecordProcess(command, outcome string, duration time.Duration) {
	ProcessDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

// RecordDeliveryAttempt records one delivery attempt on a channel.
func RecordDeliveryAttempt(channel string, success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	DeliveryAttempts.WithLabelValues(channel, outcome).Inc()
}

// SetCircuitState records a circuit breaker state change (0 closed, 1 half-open, 2 open).
func SetCircuitState(channel string, state int) {
	DeliveryCircuitState.WithLabelValues(channel).Set(float64(state))
}

// RecordScheduleFire records a scheduled execution.
func RecordScheduleFire(job string, err error) {
	ScheduleFiresTotal.WithLabelValues(job, outcomeOf(err)).Inc()
}

// SetScheduleNextFire records the next planned execution of a job.
func SetScheduleNextFire(job string, at time.Time) {
	ScheduleNextFire.WithLabelValues(job).Set(float64(at.Unix()))
}

// RecordEventPublish records a lifecycle event publish attempt.
func RecordEventPublish(err error) {
	EventsPublished.WithLabelValues(outcomeOf(err)).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
