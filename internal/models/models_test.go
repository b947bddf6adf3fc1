package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAI.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("robot").Valid())
}

func TestEstimateTokensCountsRunes(t *testing.T) {
	assert.Equal(t, 5, EstimateTokens("hello"))
	assert.Equal(t, 2, EstimateTokens("日本"))
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestSendMessageRequestNormalize(t *testing.T) {
	req := SendMessageRequest{Content: "  hi there \n"}
	req.Normalize()
	assert.Equal(t, "hi there", req.Content)
	assert.Equal(t, RoleUser, req.Role)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	assert.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret!", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Chat 3/9/2025", DefaultTitle(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))
}
