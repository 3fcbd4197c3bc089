// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sessionvault.
//
// go-sessionvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureBuffer_Bytes(t *testing.T) {
	buf := NewSecureBuffer([]byte("secret material"))

	out, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret material"), out)
	assert.Equal(t, 15, buf.Len())
	assert.False(t, buf.Cleared())
}

func TestSecureBuffer_CopiesInput(t *testing.T) {
	input := []byte("mutate me")
	buf := NewSecureBuffer(input)
	input[0] = 'X'

	out, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("mutate me"), out)
}

func TestSecureBuffer_CopiesOutput(t *testing.T) {
	buf := NewSecureBuffer([]byte("immutable"))

	out, err := buf.Bytes()
	require.NoError(t, err)
	out[0] = 'X'

	again, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func TestSecureBuffer_Zeroize(t *testing.T) {
	buf := NewSecureBuffer([]byte("ephemeral"))
	buf.Zeroize()

	assert.True(t, buf.Cleared())
	assert.Equal(t, 0, buf.Len())

	_, err := buf.Bytes()
	assert.ErrorIs(t, err, ErrBufferCleared)
}

func TestSecureBuffer_ZeroizeTwice(t *testing.T) {
	buf := NewSecureBuffer([]byte("once"))
	buf.Zeroize()
	buf.Zeroize()
	assert.True(t, buf.Cleared())
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
