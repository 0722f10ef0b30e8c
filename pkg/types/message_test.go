package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRole(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"user", RoleUser, true},
		{"assistant", RoleAssistant, true},
		{"system", RoleSystem, true},
		{"summary", RoleSummary, true},
		{"empty", Role(""), false},
		{"unknown", Role("tool"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidRole(tt.role))
		})
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewUserMessage("hello")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.False(t, msg.IsSummary())

	other := NewUserMessage("hello")
	assert.NotEqual(t, msg.ID, other.ID, "ids must be unique even for identical content")
}

func TestSummaryMessage(t *testing.T) {
	msg := NewSummaryMessage("condensed history")
	assert.True(t, msg.IsSummary())
	assert.Equal(t, RoleSummary, msg.Role)
}

func TestWithTokenCountClampsNegative(t *testing.T) {
	msg := NewAssistantMessage("hi").WithTokenCount(-5)
	assert.Equal(t, 0, msg.TokenCount)

	msg = msg.WithTokenCount(12)
	assert.Equal(t, 12, msg.TokenCount)
}

func TestWithMetadataChaining(t *testing.T) {
	msg := NewAssistantMessage("hi").
		WithMetadata("compacted", true).
		WithMetadata("folded_count", 3)

	assert.Equal(t, true, msg.Metadata["compacted"])
	assert.Equal(t, 3, msg.Metadata["folded_count"])
}
