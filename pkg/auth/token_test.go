package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgrid/intake-engine/pkg/models"
)

const testSecret = "unit-test-signing-secret"

func testAdminUser() *models.AdminUser {
	return &models.AdminUser{
		ID:          uuid.New(),
		Email:       "reviewer@clinicgrid.io",
		DisplayName: "Test Reviewer",
		Role:        models.RoleReviewer,
	}
}

func newTestVerifier(t *testing.T, enabled bool) *TokenVerifier {
	t.Helper()
	verifier, err := NewTokenVerifier(&VerifierConfig{
		EnableVerification: enabled,
		LocalSecret:        testSecret,
	})
	require.NoError(t, err)
	return verifier
}

func TestTokenIssuer_IssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	user := testAdminUser()

	token, expiresAt, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	verifier := newTestVerifier(t, true)
	defer verifier.Close()

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, LocalIssuer, claims.Issuer)
	assert.Equal(t, "reviewer@clinicgrid.io", claims.Email)
	assert.Equal(t, models.RoleReviewer, claims.Role)
}

func TestTokenVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("some-other-secret", time.Hour)
	token, _, err := issuer.Issue(testAdminUser())
	require.NoError(t, err)

	verifier := newTestVerifier(t, true)
	defer verifier.Close()

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenVerifier_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Minute)
	token, _, err := issuer.Issue(testAdminUser())
	require.NoError(t, err)

	verifier := newTestVerifier(t, true)
	defer verifier.Close()

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenVerifier_RejectsUnknownIssuer(t *testing.T) {
	verifier := newTestVerifier(t, true)
	defer verifier.Close()

	// RS256 token from an issuer with no configured JWKS endpoint.
	unknown := "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJzdWIiOiJ4IiwiaXNzIjoiaHR0cHM6Ly91bmtub3duLmV4YW1wbGUuY29tIn0." +
		"c2lnbmF0dXJl"
	_, err := verifier.ValidateToken(unknown)
	assert.Error(t, err)
}

func TestTokenVerifier_DisabledVerificationParsesWithoutSignature(t *testing.T) {
	verifier := newTestVerifier(t, false)
	defer verifier.Close()

	issuer := NewTokenIssuer("completely-different-secret", time.Hour)
	token, _, err := issuer.Issue(testAdminUser())
	require.NoError(t, err)

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer@clinicgrid.io", claims.Email)
}

func TestPassword_HashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, len(hash) > 0)
	assert.Contains(t, hash, "$argon2id$")

	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
}

func TestPassword_HashesAreSalted(t *testing.T) {
	first, err := HashPassword("same input")
	require.NoError(t, err)
	second, err := HashPassword("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of the same password must differ by salt")
	assert.True(t, VerifyPassword("same input", first))
	assert.True(t, VerifyPassword("same input", second))
}

func TestPassword_VerifyRejectsMalformedEncoding(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"not phc", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"missing params", "$argon2id$v=19$$c2FsdA$aGFzaA"},
		{"bad base64 salt", "$argon2id$v=19$m=65536,t=1,p=4$!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifyPassword("anything", tt.encoded))
		})
	}
}
