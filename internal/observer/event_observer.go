package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AnalysisEvent describes one step of a pipeline invocation.
type AnalysisEvent struct {
	EventType    EventType `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	HasQRCode    bool      `json:"has_qr_code"`
	Confidence   float64   `json:"confidence"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// EventType represents the type of analysis event
type EventType string

const (
	// AnalysisStarted when an analysis call begins
	AnalysisStarted EventType = "analysis_started"
	// QRDetected when the likelihood heuristics report a QR-like pattern
	QRDetected EventType = "qr_detected"
	// QRNotDetected when the heuristics short-circuit the call
	QRNotDetected EventType = "qr_not_detected"
	// AnalysisCompleted when detection and classification both finished
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when any stage errors
	AnalysisFailed EventType = "analysis_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

// EventSubject is the default Subject implementation.
type EventSubject struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventSubject creates an empty subject.
func NewEventSubject() *EventSubject {
	return &EventSubject{}
}

// Subscribe registers an observer.
func (s *EventSubject) Subscribe(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Unsubscribe removes an observer by name.
func (s *EventSubject) Unsubscribe(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.GetObserverName() == observer.GetObserverName() {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// NotifyObservers delivers the event to every subscriber.
func (s *EventSubject) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range observers {
		o.OnEvent(ctx, event)
	}
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{logger: logger}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"has_qr":     event.HasQRCode,
		"confidence": event.Confidence,
		"success":    event.Success,
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	if event.EventType == AnalysisFailed {
		o.logger.WithFields(fields).Error("Analysis event")
		return
	}
	o.logger.WithFields(fields).Info("Analysis event")
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// StatsObserver keeps in-memory counters of pipeline outcomes, exposed on
// the health endpoint.
type StatsObserver struct {
	mu     sync.Mutex
	counts map[EventType]int
}

// NewStatsObserver creates a stats observer.
func NewStatsObserver() *StatsObserver {
	return &StatsObserver{counts: make(map[EventType]int)}
}

// OnEvent counts the event.
func (o *StatsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[event.EventType]++
}

// GetObserverName returns the observer name
func (o *StatsObserver) GetObserverName() string {
	return "stats_observer"
}

// Snapshot returns a copy of the counters.
func (o *StatsObserver) Snapshot() map[EventType]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[EventType]int, len(o.counts))
	for k, v := range o.counts {
		out[k] = v
	}
	return out
}
