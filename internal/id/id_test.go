package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Format(t *testing.T) {
	id, err := Generate("att")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "att-"))
	// NanoID default is 21 characters after the prefix and hyphen.
	assert.Equal(t, len("att")+1+21, len(id))

	nanoidPart := strings.TrimPrefix(id, "att-")
	for _, char := range nanoidPart {
		assert.True(t,
			(char >= 'A' && char <= 'Z') ||
				(char >= 'a' && char <= 'z') ||
				(char >= '0' && char <= '9') ||
				char == '_' || char == '-',
			"Character %c should be URL-safe", char)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate("att")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestMustGenerate(t *testing.T) {
	id := MustGenerate("att")
	assert.True(t, strings.HasPrefix(id, "att-"))
	assert.Equal(t, len("att")+1+21, len(id))
}

func BenchmarkGenerate(b *testing.B) {
	for b.Loop() {
		_, _ = Generate("att")
	}
}
