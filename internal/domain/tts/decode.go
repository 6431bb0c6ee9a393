package tts

import (
	"bytes"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"clinivoice-server-go/internal/platform/errors"
)

// DecodePCM decodes an MP3 clip into 16-bit little-endian stereo PCM
// for transports that stream raw frames to the device. The returned
// sample rate comes from the clip itself.
func DecodePCM(audio *Audio) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio.MP3))
	if err != nil {
		return nil, 0, errors.TTSError("tts.DecodePCM", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, errors.TTSError("tts.DecodePCM", err)
	}
	return pcm, decoder.SampleRate(), nil
}
