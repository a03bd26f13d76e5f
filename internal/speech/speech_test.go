package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeepgramTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token k", r.Header.Get("Authorization"))
		require.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		require.Equal(t, "nova-2", r.URL.Query().Get("model"))
		require.Equal(t, "true", r.URL.Query().Get("smart_format"))
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" what is atp? "}]}]}}`))
	}))
	defer srv.Close()

	tr, err := NewTranscriber("deepgram", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	text, err := tr.Transcribe(context.Background(), []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	require.Equal(t, "what is atp?", text)
}

func TestDeepgramStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	tr, err := NewTranscriber("deepgram", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = tr.Transcribe(context.Background(), []byte("x"), "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestElevenLabsSynthesize(t *testing.T) {
	var got elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/text-to-speech/voice1", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("xi-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	syn, err := NewSynthesizer("elevenlabs", map[string]interface{}{
		"api_key": "k", "base_url": srv.URL + "/v1/text-to-speech", "voice_id": "voice1",
	})
	require.NoError(t, err)
	audio, err := syn.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []byte("ID3audio"), audio.Data)
	require.Equal(t, "audio/mpeg", audio.MIMEType)
	require.Equal(t, "eleven_turbo_v2_5", got.ModelID)
	require.InDelta(t, 0.5, got.VoiceSettings.Stability, 1e-9)
	require.InDelta(t, 0.75, got.VoiceSettings.SimilarityBoost, 1e-9)
}

func TestUnknownSpeechProviders(t *testing.T) {
	_, err := NewTranscriber("whisper", map[string]interface{}{})
	require.Error(t, err)
	_, err = NewSynthesizer("polly", map[string]interface{}{})
	require.Error(t, err)
}
