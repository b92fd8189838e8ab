// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTokenService writes a fresh RSA key pair to disk and loads it the
// way the server and the admintoken command do.
func newTestTokenService(t *testing.T, issuer string) *TokenService {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	directory := t.TempDir()
	privatePath := filepath.Join(directory, "jwt_private.pem")
	publicPath := filepath.Join(directory, "jwt_public.pem")

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o644))

	service, err := NewTokenService(privatePath, publicPath, issuer)
	require.NoError(t, err)
	return service
}

/*
TestTokenService_RoundTrip verifies a minted access token carries the
operator claims back through verification.
*/
func TestTokenService_RoundTrip(t *testing.T) {
	service := newTestTokenService(t, "manhwari.test")

	token, err := service.GenerateAccessToken("ops-1", "Ops", string(RoleAdmin), time.Hour)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.UserID)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.Equal(t, "Ops", claims.Username)
	assert.Equal(t, string(RoleAdmin), claims.Role)
	assert.Equal(t, "manhwari.test", claims.Issuer)
}

/*
TestTokenService_VerifyToken_Expired verifies a token past its lifetime is
rejected.
*/
func TestTokenService_VerifyToken_Expired(t *testing.T) {
	service := newTestTokenService(t, "manhwari.test")

	token, err := service.GenerateAccessToken("ops-1", "Ops", string(RoleAdmin), -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.Error(t, err)
}

/*
TestTokenService_VerifyToken_WrongKey verifies a token signed with a
different key pair fails verification.
*/
func TestTokenService_VerifyToken_WrongKey(t *testing.T) {
	minter := newTestTokenService(t, "manhwari.test")
	verifier := newTestTokenService(t, "manhwari.test")

	token, err := minter.GenerateAccessToken("ops-1", "Ops", string(RoleAdmin), time.Hour)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}
