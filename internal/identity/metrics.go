package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usersvc",
			Subsystem: "identity",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usersvc",
			Subsystem: "identity",
			Name:      "registrations_total",
			Help:      "Created users by creation path and role",
		},
		[]string{"path", "role"},
	)

	tokenRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usersvc",
			Subsystem: "identity",
			Name:      "token_rejections_total",
			Help:      "Rejected bearer tokens by reason",
		},
		[]string{"reason"},
	)
)
