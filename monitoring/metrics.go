package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// ServiceMetrics 服务指标，仅保存在内存中
type ServiceMetrics struct {
	metricsLock sync.RWMutex

	requests    map[requestKey]int64
	predictions map[string]int64
	feedback    map[feedbackKey]int64
	latencySum  time.Duration
	latencyN    int64

	startTime time.Time
}

type requestKey struct {
	route  string
	status int
}

type feedbackKey struct {
	truth   string
	correct bool
}

// NewServiceMetrics 创建服务指标
func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{
		requests:    make(map[requestKey]int64),
		predictions: make(map[string]int64),
		feedback:    make(map[feedbackKey]int64),
		startTime:   time.Now(),
	}
}

// RecordRequest 记录请求
func (sm *ServiceMetrics) RecordRequest(route string, status int, elapsed time.Duration) {
	sm.metricsLock.Lock()
	defer sm.metricsLock.Unlock()

	sm.requests[requestKey{route: route, status: status}]++
	sm.latencySum += elapsed
	sm.latencyN++
}

// RecordPredictions 记录预测结果
func (sm *ServiceMetrics) RecordPredictions(labels ...string) {
	sm.metricsLock.Lock()
	defer sm.metricsLock.Unlock()

	for _, label := range labels {
		sm.predictions[label]++
	}
}

// RecordFeedback 记录用户反馈
func (sm *ServiceMetrics) RecordFeedback(truth, prediction string) {
	sm.metricsLock.Lock()
	defer sm.metricsLock.Unlock()

	sm.feedback[feedbackKey{truth: truth, correct: truth == prediction}]++
}

// Snapshot 获取统计快照
func (sm *ServiceMetrics) Snapshot() map[string]interface{} {
	sm.metricsLock.RLock()
	defer sm.metricsLock.RUnlock()

	var total, agreed int64
	for key, n := range sm.feedback {
		total += n
		if key.correct {
			agreed += n
		}
	}
	accuracy := 0.0
	if total > 0 {
		accuracy = float64(agreed) / float64(total)
	}
	predictions := make(map[string]int64, len(sm.predictions))
	for label, n := range sm.predictions {
		predictions[label] = n
	}

	return map[string]interface{}{
		"uptime":            time.Since(sm.startTime).String(),
		"predictions":       predictions,
		"feedback_total":    total,
		"feedback_accuracy": accuracy,
		"goroutines":        runtime.NumGoroutine(),
	}
}

// ExportPrometheus 导出Prometheus格式
func (sm *ServiceMetrics) ExportPrometheus() string {
	sm.metricsLock.RLock()
	defer sm.metricsLock.RUnlock()

	var b strings.Builder

	writeHeader(&b, "http_requests_total", "HTTP requests by route and status", MetricTypeCounter)
	reqKeys := make([]requestKey, 0, len(sm.requests))
	for key := range sm.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].route != reqKeys[j].route {
			return reqKeys[i].route < reqKeys[j].route
		}
		return reqKeys[i].status < reqKeys[j].status
	})
	for _, key := range reqKeys {
		fmt.Fprintf(&b, "http_requests_total{route=%q,status=\"%d\"} %d\n", key.route, key.status, sm.requests[key])
	}

	writeHeader(&b, "http_request_duration_seconds_sum", "Total time spent serving requests", MetricTypeCounter)
	fmt.Fprintf(&b, "http_request_duration_seconds_sum %f\n", sm.latencySum.Seconds())
	writeHeader(&b, "http_request_duration_seconds_count", "Number of timed requests", MetricTypeCounter)
	fmt.Fprintf(&b, "http_request_duration_seconds_count %d\n", sm.latencyN)

	writeHeader(&b, "predictions_total", "Predictions by label", MetricTypeCounter)
	labels := make([]string, 0, len(sm.predictions))
	for label := range sm.predictions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(&b, "predictions_total{label=%q} %d\n", label, sm.predictions[label])
	}

	writeHeader(&b, "feedback_total", "Feedback entries by truth and agreement with the model", MetricTypeCounter)
	fbKeys := make([]feedbackKey, 0, len(sm.feedback))
	for key := range sm.feedback {
		fbKeys = append(fbKeys, key)
	}
	sort.Slice(fbKeys, func(i, j int) bool {
		if fbKeys[i].truth != fbKeys[j].truth {
			return fbKeys[i].truth < fbKeys[j].truth
		}
		return !fbKeys[i].correct && fbKeys[j].correct
	})
	for _, key := range fbKeys {
		fmt.Fprintf(&b, "feedback_total{truth=%q,correct=\"%t\"} %d\n", key.truth, key.correct, sm.feedback[key])
	}

	writeHeader(&b, "process_uptime_seconds", "Seconds since the service started", MetricTypeGauge)
	fmt.Fprintf(&b, "process_uptime_seconds %f\n", time.Since(sm.startTime).Seconds())
	return b.String()
}

func writeHeader(b *strings.Builder, name, help string, typ MetricType) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}
