// Package vad implements amplitude-threshold voice activity segmentation
// over raw PCM16 mono audio.
package vad

import "encoding/binary"

// Config holds the segmentation thresholds. Microphone gain varies a lot
// between deployments, so both values come from configuration.
type Config struct {
	// VoiceThreshold is the mean absolute sample amplitude above which a
	// chunk counts as speech.
	VoiceThreshold float64

	// SilenceFrames is the number of consecutive quiet chunks after speech
	// that ends the utterance.
	SilenceFrames int
}

// DefaultConfig returns thresholds that work for typical browser microphone
// input at 16 kHz.
func DefaultConfig() Config {
	return Config{
		VoiceThreshold: 500,
		SilenceFrames:  10,
	}
}

// Segmenter accumulates audio chunks into utterances bounded by detected
// speech onset and a trailing run of quiet chunks. It is not safe for
// concurrent use; each relay session owns exactly one.
type Segmenter struct {
	cfg      Config
	buf      []byte
	speaking bool
	silence  int
}

// New creates a Segmenter with the given thresholds. Zero or negative
// values fall back to the defaults.
func New(cfg Config) *Segmenter {
	def := DefaultConfig()
	if cfg.VoiceThreshold <= 0 {
		cfg.VoiceThreshold = def.VoiceThreshold
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	return &Segmenter{cfg: cfg}
}

// Process feeds one audio chunk through the segmenter. When a trailing run
// of quiet chunks closes an utterance, it returns the accumulated bytes and
// true; otherwise it returns nil and false. Quiet input with nothing
// buffered never emits.
func (s *Segmenter) Process(chunk []byte) ([]byte, bool) {
	if MeanAmplitude(chunk) > s.cfg.VoiceThreshold {
		s.speaking = true
		s.silence = 0
		s.buf = append(s.buf, chunk...)
		return nil, false
	}

	s.silence++
	if !s.speaking || s.silence <= s.cfg.SilenceFrames {
		return nil, false
	}

	s.speaking = false
	s.silence = 0
	if len(s.buf) == 0 {
		return nil, false
	}
	utterance := s.buf
	s.buf = nil
	return utterance, true
}

// Speaking reports whether the segmenter is currently inside an utterance.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// Buffered returns the number of bytes accumulated for the open utterance.
func (s *Segmenter) Buffered() int {
	return len(s.buf)
}

// Reset discards any buffered audio and returns the segmenter to idle.
func (s *Segmenter) Reset() {
	s.buf = nil
	s.speaking = false
	s.silence = 0
}

// MeanAmplitude computes the mean absolute amplitude of little-endian
// 16-bit signed samples. A trailing odd byte is ignored.
func MeanAmplitude(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := int32(sample)
		if v < 0 {
			v = -v
		}
		sum += float64(v)
	}
	return sum / float64(n)
}
