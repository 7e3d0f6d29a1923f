package constants

type contextKey string

const (
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
	LoggerKey    contextKey = "logger"
	RequestIDKey contextKey = "request_id"
	ActorKey     contextKey = "actor"
)

const (
	RequestIDHeader = "X-Request-ID"
	ActorIDHeader   = "X-Actor-ID"
)
