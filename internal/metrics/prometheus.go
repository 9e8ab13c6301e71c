package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildlife_grad_pipeline_run_duration_seconds",
			Help:    "Batch classification run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	PostingsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildlife_grad_postings_classified_total",
			Help: "Total postings classified",
		},
		[]string{"discipline"},
	)

	UnclassifiablePostings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildlife_grad_unclassifiable_postings_total",
			Help: "Postings skipped because they had no usable text",
		},
	)

	ClassificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildlife_grad_classification_confidence",
			Help:    "Classifier confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wildlife_grad_confidence_queue_size",
			Help: "Items in the confidence review queue after the last run",
		},
	)

	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildlife_grad_training_runs_total",
			Help: "Retraining attempts by decision",
		},
		[]string{"decision", "reason"},
	)

	PromotedMacroF1 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wildlife_grad_promoted_macro_f1",
			Help: "Macro F1 of the currently promoted model",
		},
	)

	GoldLabelsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wildlife_grad_gold_labels_total",
			Help: "Labels in the gold label store",
		},
	)

	ReviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildlife_grad_review_decisions_total",
			Help: "Imported review decisions by action",
		},
		[]string{"action"},
	)
)

func Init() {
	prometheus.MustRegister(PipelineRunDuration)
	prometheus.MustRegister(PostingsClassified)
	prometheus.MustRegister(UnclassifiablePostings)
	prometheus.MustRegister(ClassificationConfidence)
	prometheus.MustRegister(QueueSize)
	prometheus.MustRegister(TrainingRuns)
	prometheus.MustRegister(PromotedMacroF1)
	prometheus.MustRegister(GoldLabelsTotal)
	prometheus.MustRegister(ReviewDecisions)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
