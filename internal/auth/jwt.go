package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "graphite"

// ErrInvalidToken токен не прошёл проверку подписи или срока
var ErrInvalidToken = errors.New("invalid operator token")

// Claims содержимое токена оператора admin API
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Issuer выпускает и проверяет токены операторов (HS256)
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer принимает секрет в base64 длиной не меньше 32 байт
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("admin secret: %w", err)
	}
	if len(decoded) < 32 {
		return nil, errors.New("admin secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: decoded, ttl: ttl, now: time.Now}, nil
}

// GenerateSecureSecret новый случайный секрет в base64
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// Issue подписывает токен для оператора
func (i *Issuer) Issue(operator string) (string, error) {
	if operator == "" {
		return "", errors.New("operator name is empty")
	}
	now := i.now()
	claims := &Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate проверяет подпись, срок и издателя
func (i *Issuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
