package postgres

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgsMatch_WholeDocument(t *testing.T) {
	a := json.RawMessage(`{"a":1,"b":2}`)
	b := json.RawMessage(`{"b":2,"a":1}`)
	c := json.RawMessage(`{"a":1,"b":3}`)

	assert.True(t, argsMatch(nil, a, b), "key order should not matter")
	assert.False(t, argsMatch(nil, a, c))
}

func TestArgsMatch_RestrictedKeys(t *testing.T) {
	a := json.RawMessage(`{"account_id":7,"trace":"abc"}`)
	b := json.RawMessage(`{"account_id":7,"trace":"xyz"}`)
	c := json.RawMessage(`{"account_id":8,"trace":"abc"}`)

	assert.True(t, argsMatch([]string{"account_id"}, a, b))
	assert.False(t, argsMatch([]string{"account_id"}, a, c))
}

func TestArgsMatch_MissingKeyOnOneSide(t *testing.T) {
	a := json.RawMessage(`{"account_id":7}`)
	b := json.RawMessage(`{}`)
	assert.False(t, argsMatch([]string{"account_id"}, a, b))
}
