package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Taps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_taps_total",
			Help: "Mining taps by result",
		},
		[]string{"result"},
	)
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_session_mutations_total",
			Help: "Session mutations by operation",
		},
		[]string{"op"},
	)
	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_persist_failures_total",
			Help: "Background persistence failures by operation",
		},
		[]string{"op"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "treeton_active_sessions",
			Help: "Open user sessions",
		},
	)
	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_withdrawal_transitions_total",
			Help: "Withdrawal status transitions by asset and target status",
		},
		[]string{"asset", "status"},
	)
	Payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_payment_attempts_total",
			Help: "Payout attempts by result",
		},
		[]string{"result"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treeton_notifications_total",
			Help: "Telegram notifications by kind and result",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(Taps, Mutations, PersistFailures, ActiveSessions, Withdrawals, Payments, Notifications)
}
