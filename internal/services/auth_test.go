package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	svc := NewAuthService(logger.Nop(), "secret")
	userID := uuid.New()

	tok, err := svc.IssueToken(userID, time.Minute)
	require.NoError(t, err)

	got, err := svc.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	ctx, err := svc.SetContextFromToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, userID, ctxutil.UserID(ctx))
}

func TestAuthServiceLegacyIDClaim(t *testing.T) {
	userID := uuid.New()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{ID: userID.String()}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, err := NewAuthService(logger.Nop(), "secret").ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthServiceRejects(t *testing.T) {
	svc := NewAuthService(logger.Nop(), "secret")
	userID := uuid.New()

	other, _ := NewAuthService(logger.Nop(), "other").IssueToken(userID, time.Minute)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: userID.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	badSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "nope"}).SignedString([]byte("secret"))
	past, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("secret"))

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "a.b.c",
		"wrong secret": other,
		"alg none":     noneAlg,
		"bad subject":  badSub,
		"expired":      past,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
