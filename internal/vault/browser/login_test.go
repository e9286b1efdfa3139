package browser

import (
	"strconv"
	"testing"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestResolveExpiry_PortalRFC3339(t *testing.T) {
	now := time.Now().UTC()
	want := now.Add(2 * time.Hour).Truncate(time.Second)

	got := resolveExpiry(want.Format(time.RFC3339), "opaque-token", now, time.Hour)
	require.True(t, got.Equal(want))
}

func TestResolveExpiry_PortalEpochSeconds(t *testing.T) {
	now := time.Now().UTC()
	want := now.Add(3 * time.Hour).Truncate(time.Second)

	got := resolveExpiry(strconv.FormatInt(want.Unix(), 10), "opaque-token", now, time.Hour)
	require.True(t, got.Equal(want))
}

func TestResolveExpiry_PortalEpochMillis(t *testing.T) {
	now := time.Now().UTC()
	want := now.Add(3 * time.Hour).Truncate(time.Millisecond)

	got := resolveExpiry(strconv.FormatInt(want.UnixMilli(), 10), "opaque-token", now, time.Hour)
	require.True(t, got.Equal(want))
}

func TestResolveExpiry_JWTExpFallback(t *testing.T) {
	now := time.Now().UTC()
	exp := now.Add(90 * time.Minute).Truncate(time.Second)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "SILVA.A12345",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	got := resolveExpiry("", token, now, time.Hour)
	require.True(t, got.Equal(exp))
}

func TestResolveExpiry_DefaultTTL(t *testing.T) {
	now := time.Now().UTC()

	got := resolveExpiry("", "not-a-jwt", now, 6*time.Hour)
	require.True(t, got.Equal(now.Add(6*time.Hour)))
}

func TestResolveExpiry_GarbagePortalValueFallsThrough(t *testing.T) {
	now := time.Now().UTC()

	got := resolveExpiry("soonish", "not-a-jwt", now, time.Hour)
	require.True(t, got.Equal(now.Add(time.Hour)))
}

func TestJWTExpiry_RejectsNonJWT(t *testing.T) {
	_, ok := jwtExpiry("just-an-opaque-string")
	require.False(t, ok)

	_, ok = jwtExpiry("a.b")
	require.False(t, ok)
}

func TestResolveOTPCode_ExplicitCodeWins(t *testing.T) {
	f := &flow{creds: domain.Credentials{
		OTPCode:   "123456",
		OTPSecret: "JBSWY3DPEHPK3PXP",
	}}

	code, err := f.resolveOTPCode(time.Now())
	require.NoError(t, err)
	require.Equal(t, "123456", code)
}

func TestResolveOTPCode_GeneratesFromSecret(t *testing.T) {
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	f := &flow{creds: domain.Credentials{OTPSecret: "JBSWY3DPEHPK3PXP"}}

	code, err := f.resolveOTPCode(at)
	require.NoError(t, err)
	require.Len(t, code, 6)

	want, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", at)
	require.NoError(t, err)
	require.Equal(t, want, code)
}

func TestResolveOTPCode_BadSecret(t *testing.T) {
	f := &flow{creds: domain.Credentials{OTPSecret: "!!not base32!!"}}

	_, err := f.resolveOTPCode(time.Now())
	require.Error(t, err)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}
