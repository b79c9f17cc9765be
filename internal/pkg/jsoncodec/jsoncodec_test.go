package jsoncodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Name  string  `json:"name"`
	Score float64 `json:"score,omitempty"`
}

func TestCodec(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&message{Name: "a", Score: 0.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","score":0.5}`, string(data))

	var out message
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, message{Name: "a", Score: 0.5}, out)
}

func TestCodec_EmptyBody(t *testing.T) {
	var out message
	assert.NoError(t, Codec{}.Unmarshal(nil, &out))
	assert.Equal(t, message{}, out)
}

func TestCodec_Invalid(t *testing.T) {
	var out message
	assert.Error(t, Codec{}.Unmarshal([]byte("{"), &out))
}
