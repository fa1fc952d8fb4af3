package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken токен не прошел проверку
var ErrInvalidToken = errors.New("invalid token")

// ReplicaClaims представляет JWT claims реплики
type ReplicaClaims struct {
	ReplicaID string `json:"replica_id"`
	jwt.RegisteredClaims
}

// JWTConfig содержит конфигурацию для JWT
type JWTConfig struct {
	Secret   []byte
	TokenTTL time.Duration
}

// GenerateReplicaToken выпускает токен доступа к DataGate для реплики
func GenerateReplicaToken(cfg JWTConfig, replicaID string) (string, time.Time, error) {
	if replicaID == "" {
		return "", time.Time{}, errors.New("replica id is required")
	}
	if len(cfg.Secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}

	now := time.Now()
	expiresAt := now.Add(cfg.TokenTTL)

	claims := ReplicaClaims{
		ReplicaID: replicaID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   replicaID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "docsync-datagate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateReplicaToken валидирует и парсит JWT реплики
func ValidateReplicaToken(cfg JWTConfig, tokenString string) (*ReplicaClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ReplicaClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, jwt.WithIssuer("docsync-datagate"))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ReplicaClaims)
	if !ok || !token.Valid || claims.ReplicaID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
