// Package voice turns assistant replies into speech using Google Cloud
// Text-to-Speech. Synthesis is optional: when no synthesizer is configured the
// API simply omits audio from its responses.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Audio format constants. The frontend plays raw LINEAR16 at 48kHz.
const (
	sampleRateHertz = 48000
	languageCode    = "en-US"
)

// Voice names matched to the agent personas.
const (
	voiceFemale = "en-US-Chirp3-HD-Leda"
	voiceMale   = "en-US-Chirp3-HD-Charon"
)

// VoiceFor returns the synthesis voice for a persona gender. The default
// persona speaks with the female voice.
func VoiceFor(gender string) string {
	if strings.EqualFold(gender, "male") {
		return voiceMale
	}
	return voiceFemale
}

// Synthesizer wraps the Cloud TTS client with the service's fixed audio
// profile.
type Synthesizer struct {
	client *texttospeech.Client
}

// NewSynthesizer dials the Cloud TTS API. Credentials come from the ambient
// environment (GOOGLE_APPLICATION_CREDENTIALS or metadata server).
func NewSynthesizer(ctx context.Context) (*Synthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating text-to-speech client: %w", err)
	}
	slog.Info("Synthesizer created")
	return &Synthesizer{client: client}, nil
}

// Synthesize renders text as raw LINEAR16 audio at 48kHz using the persona
// voice for the given gender.
func (s *Synthesizer) Synthesize(ctx context.Context, text, gender string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyMessage
	}
	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageCode,
			Name:         VoiceFor(gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: sampleRateHertz,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	slog.Debug("Synthesizer.Synthesize: audio generated", "bytes", len(resp.AudioContent), "voice", VoiceFor(gender))
	return resp.AudioContent, nil
}

// Close releases the underlying client connection.
func (s *Synthesizer) Close() error {
	return s.client.Close()
}
