package monitoring

import (
	"context"
	"net/http"

	"automl-engine/core/models"
	"automl-engine/core/repository"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsDesc = prometheus.NewDesc("automl_jobs",
		"Number of jobs per status", []string{"status"}, nil)
	jobsByTaskDesc = prometheus.NewDesc("automl_jobs_by_task_type",
		"Number of jobs per task type", []string{"task_type"}, nil)
	trialsDesc = prometheus.NewDesc("automl_trials",
		"Number of trials per status", []string{"status"}, nil)
	bestScoreDesc = prometheus.NewDesc("automl_job_best_score",
		"Best objective score of a job", []string{"job_id", "task_type", "objective", "team"}, nil)
)

var allStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusRunning,
	models.JobStatusCompleted,
	models.JobStatusFailed,
	models.JobStatusCancelled,
}

var allTrialStatuses = []models.TrialStatus{
	models.TrialStatusPending,
	models.TrialStatusRunning,
	models.TrialStatusCompleted,
	models.TrialStatusFailed,
}

// MetricsExporter exports job metrics for Prometheus/Grafana. It is a
// collector that reads the job store on every scrape.
type MetricsExporter struct {
	jobs     repository.JobStore
	registry *prometheus.Registry
}

// NewMetricsExporter creates a new metrics exporter registered on its own registry
func NewMetricsExporter(jobs repository.JobStore) *MetricsExporter {
	me := &MetricsExporter{jobs: jobs, registry: prometheus.NewRegistry()}
	me.registry.MustRegister(me)
	return me
}

// Handler serves the exposition of the exporter's registry
func (me *MetricsExporter) Handler() http.Handler {
	return promhttp.HandlerFor(me.registry, promhttp.HandlerOpts{})
}

// Describe implements prometheus.Collector
func (me *MetricsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- jobsDesc
	ch <- jobsByTaskDesc
	ch <- trialsDesc
	ch <- bestScoreDesc
}

// Collect implements prometheus.Collector
func (me *MetricsExporter) Collect(ch chan<- prometheus.Metric) {
	jobs, err := me.jobs.List(context.Background(), nil)
	if err != nil {
		log.Errorf("failed to list jobs for metrics: %v", err)
		ch <- prometheus.NewInvalidMetric(jobsDesc, err)
		return
	}

	byStatus := make(map[models.JobStatus]int)
	byTask := make(map[models.TaskType]int)
	trials := make(map[models.TrialStatus]int)
	for _, job := range jobs {
		byStatus[job.Status]++
		byTask[job.TaskType]++
		for _, t := range job.Results.AllModels {
			trials[t.Status]++
		}
	}

	// Job count metrics
	for _, status := range allStatuses {
		ch <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue,
			float64(byStatus[status]), string(status))
	}
	for task, n := range byTask {
		ch <- prometheus.MustNewConstMetric(jobsByTaskDesc, prometheus.GaugeValue,
			float64(n), string(task))
	}
	for _, status := range allTrialStatuses {
		ch <- prometheus.MustNewConstMetric(trialsDesc, prometheus.GaugeValue,
			float64(trials[status]), string(status))
	}

	// Per-job best score
	for _, job := range jobs {
		if job.Results.BestScore == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(bestScoreDesc, prometheus.GaugeValue, *job.Results.BestScore,
			job.ID, string(job.TaskType), string(job.Objective), job.Metadata.Team)
	}
}
