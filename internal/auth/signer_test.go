package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/domain"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	claims := Claims{
		Subject:   "scorer-a",
		MatchID:   "match-1",
		Role:      domain.RoleScorer,
		Side:      domain.SideHome,
		ExpiresAt: now.Add(time.Hour),
	}

	token, err := s.Mint(claims)
	require.NoError(t, err)

	got, err := s.Verify(token, now)
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, got.Subject)
	assert.Equal(t, claims.Role, got.Role)
	assert.Equal(t, claims.Side, got.Side)
}

func TestVerifyRejects(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)
	other, err := NewSigner("other-secret")
	require.NoError(t, err)

	now := time.Now().UTC()
	token, err := s.Mint(Claims{
		Subject: "scorer-a", Role: domain.RoleScorer, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		_, err := s.Verify(token, now.Add(2*time.Hour))
		assert.Equal(t, domain.ErrUnauthenticated, domain.KindOf(err))
	})
	t.Run("wrong secret", func(t *testing.T) {
		_, err := other.Verify(token, now)
		assert.Equal(t, domain.ErrUnauthenticated, domain.KindOf(err))
	})
	t.Run("tampered body", func(t *testing.T) {
		body, mac, _ := strings.Cut(token, ".")
		_, err := s.Verify(body[:len(body)-2]+"xx."+mac, now)
		assert.Equal(t, domain.ErrUnauthenticated, domain.KindOf(err))
	})
	t.Run("no separator", func(t *testing.T) {
		_, err := s.Verify("garbage", now)
		assert.Equal(t, domain.ErrUnauthenticated, domain.KindOf(err))
	})
}

func TestSignPayloadBindsSubject(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)

	payload := []byte(`{"runsOffBat":4}`)
	a := s.SignPayload("scorer-a", payload)
	b := s.SignPayload("scorer-b", payload)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, s.SignPayload("scorer-a", payload))
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewSigner("")
	assert.Error(t, err)
}

func TestRoleTable(t *testing.T) {
	assert.True(t, Allowed(domain.RoleScorer, CmdSubmitBall))
	assert.True(t, Allowed(domain.RoleUmpire, CmdResolveDispute))
	assert.True(t, Allowed(domain.RoleCreator, CmdConductToss))
	assert.True(t, Allowed(domain.RoleCaptain, CmdSetPlayingXI))

	assert.False(t, Allowed(domain.RoleScorer, CmdResolveDispute))
	assert.False(t, Allowed(domain.RoleScorer, CmdConductToss))
	assert.False(t, Allowed(domain.RoleViewer, CmdSubmitBall))
	assert.False(t, Allowed(domain.RoleCaptain, CmdSubmitBall))
}

func TestRequireOfficial(t *testing.T) {
	officials := []*domain.Official{
		{MatchID: "m1", Subject: "scorer-a", Role: domain.RoleScorer, Side: domain.SideHome},
		{MatchID: "m1", Subject: "ump-1", Role: domain.RoleUmpire},
	}

	scorer := Claims{Subject: "scorer-a", MatchID: "m1", Role: domain.RoleScorer, Side: domain.SideHome}
	assert.NoError(t, RequireOfficial(scorer, "m1", "creator-1", officials, CmdSubmitBall))

	t.Run("unregistered subject", func(t *testing.T) {
		c := Claims{Subject: "stranger", Role: domain.RoleScorer}
		err := RequireOfficial(c, "m1", "creator-1", officials, CmdSubmitBall)
		assert.Equal(t, domain.ErrPermissionDenied, domain.KindOf(err))
	})
	t.Run("creator implicit", func(t *testing.T) {
		c := Claims{Subject: "creator-1", Role: domain.RoleViewer}
		assert.NoError(t, RequireOfficial(c, "m1", "creator-1", officials, CmdConductToss))
	})
	t.Run("role too weak", func(t *testing.T) {
		err := RequireOfficial(scorer, "m1", "creator-1", officials, CmdResolveDispute)
		assert.Equal(t, domain.ErrPermissionDenied, domain.KindOf(err))
	})
	t.Run("foreign match scope", func(t *testing.T) {
		c := scorer
		c.MatchID = "m2"
		err := RequireOfficial(c, "m1", "creator-1", officials, CmdSubmitBall)
		assert.Equal(t, domain.ErrPermissionDenied, domain.KindOf(err))
	})
}
