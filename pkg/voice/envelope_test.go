package voice_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/voice"
)

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	env, err := voice.NewEnvelope(make([]byte, 16))
	require.NoError(t, err)

	sealed, err := env.Seal([]byte("edge voice datagram payload"))
	require.NoError(t, err)

	plain, err := env.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "edge voice datagram payload", string(plain))
}

func TestEnvelopeOpenRejectsShortInput(t *testing.T) {
	env, err := voice.NewEnvelope(make([]byte, 16))
	require.NoError(t, err)

	_, err = env.Open([]byte("short"))
	require.ErrorIs(t, err, voice.ErrEnvelopeTooShort)
}

func TestEnvelopeProducesDistinctCiphertextPerCall(t *testing.T) {
	env, err := voice.NewEnvelope(make([]byte, 16))
	require.NoError(t, err)

	a, err := env.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := env.Seal([]byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, a, b, "random IV must vary ciphertext across calls")
}
