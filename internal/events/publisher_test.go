package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	payload, err := Encode(map[string]int{"messages": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":3}`, string(payload))

	_, err = Encode(make(chan int))
	assert.Error(t, err)
}
