// Package metrics содержит счетчики Prometheus для клиента чата.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_console"

// Metrics объединяет все коллекторы клиента.
// Нулевой указатель допустим: все методы в этом случае ничего не делают.
type Metrics struct {
	inbound     *prometheus.CounterVec
	unknown     prometheus.Counter
	outbound    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	stale       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New создает коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound gateway events dispatched, by action.",
		}, []string{"action"}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_actions_total",
			Help:      "Inbound gateway events with an unknown action.",
		}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_operations_total",
			Help:      "Outbound gateway operations, by action and result.",
		}, []string{"action", "result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_items_total",
			Help:      "Inbound items dropped without failing the batch, by reason.",
		}, []string{"reason"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses discarded because their session was superseded, by source.",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Room session state transitions, by target state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.inbound, m.unknown, m.outbound, m.dropped, m.stale, m.transitions)
	}
	return m
}

// Inbound учитывает входящее событие.
func (m *Metrics) Inbound(action string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(action).Inc()
}

// Unknown учитывает событие с неизвестным действием.
func (m *Metrics) Unknown() {
	if m == nil {
		return
	}
	m.unknown.Inc()
}

// Outbound учитывает исходящую операцию.
func (m *Metrics) Outbound(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outbound.WithLabelValues(action, result).Inc()
}

// Dropped учитывает отброшенный элемент.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Stale учитывает устаревший ответ.
func (m *Metrics) Stale(source string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(source).Inc()
}

// Transition учитывает переход сессии в новое состояние.
func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}
