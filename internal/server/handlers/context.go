package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

// ReplicaIDKey ключ для хранения replica_id в контексте
const ReplicaIDKey contextKey = "replica_id"

// WithReplicaID возвращает контекст с идентификатором реплики
func WithReplicaID(ctx context.Context, replicaID string) context.Context {
	return context.WithValue(ctx, ReplicaIDKey, replicaID)
}

// GetReplicaID извлекает replica_id из контекста запроса
func GetReplicaID(ctx context.Context) (string, bool) {
	replicaID, ok := ctx.Value(ReplicaIDKey).(string)
	return replicaID, ok && replicaID != ""
}
