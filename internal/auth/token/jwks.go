package token

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier проверяет токены внешнего источника (auth framework)
// по ключам из JWKS endpoint. Формат claims тот же, что у Manager.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
}

// NewJWKSVerifier создаёт верификатор с фоновым обновлением JWKS.
// Стартует даже если JWKS endpoint ещё недоступен.
func NewJWKSVerifier(
	jwksURL string,
	issuer string,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*JWKSVerifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWKSVerifierWithKeyfunc(k, issuer, leeway), nil
}

// NewJWKSVerifierWithKeyfunc создаёт верификатор с готовой keyfunc.
// Используется в тестах для подстановки JWKS из памяти.
func NewJWKSVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration) *JWKSVerifier {
	return &JWKSVerifier{
		jwks:   kf,
		issuer: issuer,
		leeway: leeway,
	}
}

// Verify реализует Verifier.
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.ParseWithClaims(raw, claims, v.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}

	return sessionFromClaims(claims)
}
