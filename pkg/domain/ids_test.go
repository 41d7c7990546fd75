package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDsAreUniqueAndNonZero(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())

	var zero SessionID
	assert.True(t, zero.IsZero())
}

func TestIDRoundTripsThroughJSON(t *testing.T) {
	id := NewMessageID()
	data, err := json.Marshal(id)
	require.NoError(t, err)

	var out MessageID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out)
}

func TestNonEmptyStringRejectsBlank(t *testing.T) {
	_, err := NewNonEmptyString("   \t\n")
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = NewNonEmptyString("")
	assert.ErrorIs(t, err, ErrEmptyString)

	v, err := NewNonEmptyString("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v.String())
}

func TestNonEmptyStringJSON(t *testing.T) {
	v := MustNonEmptyString("hi")
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(data))

	var out NonEmptyString
	require.NoError(t, json.Unmarshal([]byte(`"world"`), &out))
	assert.Equal(t, "world", out.String())

	var bad NonEmptyString
	assert.Error(t, json.Unmarshal([]byte(`"   "`), &bad))
}
