package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

func TestBindingFallbacks(t *testing.T) {
	bound := tenant.WithBinding(context.Background(),
		tenant.NewBinding("acme", "alice", types.ActorHuman))

	tests := []struct {
		name          string
		ctx           context.Context
		explicitActor string
		wantID        string
		wantActor     string
		wantType      types.ActorType
	}{
		{
			name:      "bound context",
			ctx:       bound,
			wantID:    "acme",
			wantActor: "alice",
			wantType:  types.ActorHuman,
		},
		{
			name:          "explicit actor wins over binding",
			ctx:           bound,
			explicitActor: "bob",
			wantID:        "acme",
			wantActor:     "bob",
			wantType:      types.ActorHuman,
		},
		{
			name:      "bare context falls back to defaults",
			ctx:       context.Background(),
			wantID:    tenant.DefaultTenant,
			wantActor: "system",
			wantType:  types.ActorSystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantID, tenant.ID(tt.ctx))
			assert.Equal(t, tt.wantActor, tenant.Actor(tt.ctx, tt.explicitActor))
			assert.Equal(t, tt.wantType, tenant.ActorType(tt.ctx, ""))
		})
	}
}

func TestNewBindingSessionIDs(t *testing.T) {
	a := tenant.NewBinding("acme", "alice", types.ActorHuman)
	b := tenant.NewBinding("acme", "alice", types.ActorHuman)
	assert.NotEmpty(t, a.SessionID)
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifierSigned(t *testing.T) {
	v := tenant.NewVerifier("sekrit")

	token := signToken(t, "sekrit", jwt.MapClaims{
		"sub":       "alice@acme",
		"tenant_id": "acme",
		"roles":     []string{"approver"},
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, "alice@acme", claims.Subject)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, []string{"approver"}, claims.Roles)

	info := claims.AuditUserInfo()
	assert.Equal(t, "alice@acme", info["subject"])
	assert.Equal(t, "acme", info["tenant_id"])
}

func TestVerifierRejections(t *testing.T) {
	v := tenant.NewVerifier("sekrit")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not-a-jwt"},
		{"wrong key", signToken(t, "other-key", jwt.MapClaims{"sub": "alice"})},
		{"expired", signToken(t, "sekrit", jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"no subject", signToken(t, "sekrit", jwt.MapClaims{"tenant_id": "acme"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, storage.ErrUnauthorized)
		})
	}
}

func TestVerifierUnsignedMode(t *testing.T) {
	// No key configured: claims are extracted without signature checks.
	v := tenant.NewVerifier("")

	token := signToken(t, "whatever", jwt.MapClaims{"sub": "gateway-user"})
	claims, err := v.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, "gateway-user", claims.Subject)
}
