package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maa"

// Metrics holds Prometheus collectors for the group chat and its providers.
type Metrics struct {
	Rounds       prometheus.Counter       // completed rounds
	Selections   *prometheus.CounterVec   // agent selections by agent and whether it was the initial pick
	Messages     *prometheus.CounterVec   // appended messages by author
	Terminations *prometheus.CounterVec   // conversation completions by reason
	Errors       *prometheus.CounterVec   // round failures by error code
	TurnDuration *prometheus.HistogramVec // agent turn latency by agent
	LLMDuration  *prometheus.HistogramVec // provider call latency by provider and outcome
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_rounds_total",
			Help:      "Total number of completed group chat rounds",
		}),
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_selections_total",
			Help:      "Total number of agent selections",
		}, []string{"agent", "initial"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_messages_total",
			Help:      "Total number of messages appended to the transcript",
		}, []string{"author"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_terminations_total",
			Help:      "Total number of completed conversations",
		}, []string{"reason"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_errors_total",
			Help:      "Total number of failed rounds",
		}, []string{"code"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_turn_duration_seconds",
			Help:      "Agent turn latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"agent"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Text generation request latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider", "outcome"}),
	}

	reg.MustRegister(
		m.Rounds,
		m.Selections,
		m.Messages,
		m.Terminations,
		m.Errors,
		m.TurnDuration,
		m.LLMDuration,
	)
	return m
}

// RoundCompleted counts a successful round.
func (m *Metrics) RoundCompleted() {
	m.Rounds.Inc()
}

// AgentSelected counts a selection.
func (m *Metrics) AgentSelected(agent string, initial bool) {
	label := "false"
	if initial {
		label = "true"
	}
	m.Selections.WithLabelValues(agent, label).Inc()
}

// MessageAppended counts a transcript append.
func (m *Metrics) MessageAppended(author string) {
	m.Messages.WithLabelValues(author).Inc()
}

// Terminated counts a completed conversation.
func (m *Metrics) Terminated(reason string) {
	m.Terminations.WithLabelValues(reason).Inc()
}

// RoundFailed counts a failed round under its error code.
func (m *Metrics) RoundFailed(code string) {
	m.Errors.WithLabelValues(code).Inc()
}

// ObserveTurn records how long an agent took to reply.
func (m *Metrics) ObserveTurn(agent string, d time.Duration) {
	m.TurnDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveLLM records a provider call. outcome is "ok" or an error code.
func (m *Metrics) ObserveLLM(provider, outcome string, d time.Duration) {
	m.LLMDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}
