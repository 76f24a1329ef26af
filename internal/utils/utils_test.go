package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateAccessToken("secret", userID, "a@b.io", "SUPER_ADMIN", time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "a@b.io", claims.Email)
	assert.Equal(t, "SUPER_ADMIN", claims.Role)
}

func TestParseAccessTokenRejects(t *testing.T) {
	userID := uuid.New()

	expired, err := GenerateAccessToken("secret", userID, "a@b.io", "USER", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	valid, err := GenerateAccessToken("secret", userID, "a@b.io", "USER", time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("other", valid)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"jane@example.com", true},
		{"  jane.doe+shop@mail.example.org ", true},
		{"jane@", false},
		{"jane.example.com", false},
		{"jane@example", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEmail(tt.email))
		})
	}
}

func TestPaginationMeta(t *testing.T) {
	p := Pagination{Page: 2, Limit: 10, Offset: 10}
	meta := p.Meta(21)
	assert.Equal(t, 3, meta["total_pages"])
	assert.Equal(t, int64(21), meta["total_items"])
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"M", "L"}, SplitList(" M, ,L "))
}
