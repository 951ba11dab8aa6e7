package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics for monitoring message lifecycle, policy gating and realtime delivery
var (
	ChatMessageCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_created_total",
		Help: "Total number of messages created",
	}, []string{"channel", "guest"})

	ChatMessageDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_deleted_total",
		Help: "Total number of messages deleted",
	}, []string{"scope"}) // "single", "thread"

	ChatMessageDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_denied_total",
		Help: "Total number of sends rejected by the access policy",
	}, []string{"channel", "reason"})

	ChatEventEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_event_emitted_total",
		Help: "Total number of realtime events handed to the publisher",
	}, []string{"operation", "status"})

	ChatEventQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_event_queue_length",
		Help: "Current number of events waiting to be published",
	})

	ChatNotificationSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_notification_sent_total",
		Help: "Total number of sender notifications by outcome",
	}, []string{"status"})

	ChatPushSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_push_sent_total",
		Help: "Total number of push deliveries by outcome",
	}, []string{"status"})

	ChatInboxWindowSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_inbox_window_size",
		Help:    "Number of candidate messages grouped per inbox request",
		Buckets: []float64{0, 10, 25, 50, 100, 200, 300},
	})

	ChatMessagesMarkedReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_marked_read_total",
		Help: "Total number of direct messages flipped to read",
	})

	ChatSettingsRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_settings_refresh_total",
		Help: "Total number of global settings refreshes by outcome",
	}, []string{"status"})

	RedisDegradedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})

	RedisHealthCheckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks by outcome",
	}, []string{"status"})
)
