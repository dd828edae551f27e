package common

const (
	KEY_AI_PROBE   = "ai_probe:%s"
	KEY_NEWS       = "news:%s"
	KEY_JOB        = "job:%s"
)

const (
	ENV_PRODUCTION  = "production"
	ENV_DEVELOPMENT = "development"
)

const (
	QUEUE_BACKEND_MEMORY   = "memory"
	QUEUE_BACKEND_REDIS    = "redis"
	QUEUE_BACKEND_POSTGRES = "postgres"
)

const (
	SOURCE_RULE_BASED      = "rule-based"
	SOURCE_STATIC_FALLBACK = "static-fallback"
	SOURCE_AI_PREFIX       = "ai:"
)

const (
	KEY_LOG_HOOK_SEND_ALERT = "send_alert"
)
