package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultSystemInstruction = "You are Cadenza, a friendly real-estate guide for a virtual apartment tour. " +
	"Answer questions about the property, the neighbourhood and the buying process. " +
	"Keep answers short and conversational; you are speaking, not writing."

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	SentryDSN     string
	LogLevel      string

	// Gemini Live speech backend
	GeminiAPIKey      string
	GeminiModel       string
	GeminiVoice       string
	SystemInstruction string

	// Conversation settings
	GreetingText       string
	DisableGreeting    bool
	TurnCompleteStatus string

	// Client audio and voice segmentation
	SampleRate     int
	VoiceThreshold float64
	SilenceFrames  int
	TeardownGrace  time.Duration

	// LiveKit token issuance
	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string
	TokenTTL         time.Duration

	// Static tour assets; empty disables the asset routes
	AssetsDir string
}

func LoadConfigFromEnv() Config {
	tokenTTL, err := time.ParseDuration(getenv("TOKEN_TTL", "6h"))
	if err != nil {
		tokenTTL = 6 * time.Hour
	}
	teardownGrace, err := time.ParseDuration(getenv("TEARDOWN_GRACE", "5s"))
	if err != nil {
		teardownGrace = 5 * time.Second
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		// Gemini Live speech backend
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"), // Required - no fallback
		GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		GeminiVoice:       getenv("GEMINI_VOICE", "Aoede"),
		SystemInstruction: getenv("SYSTEM_INSTRUCTION", defaultSystemInstruction),

		// Conversation settings
		GreetingText:       getenv("GREETING_TEXT", "Hello! I'm Cadenza, your guide for this tour. Ask me anything about the apartment."),
		DisableGreeting:    getenvBool("DISABLE_GREETING", false),
		TurnCompleteStatus: getenv("TURN_COMPLETE_STATUS", "ai_turn_complete"),

		// Client audio and voice segmentation
		SampleRate:     getenvIntClamped("AUDIO_SAMPLE_RATE", 16000, 8000, 48000),
		VoiceThreshold: getenvFloatClamped("VOICE_THRESHOLD", 500, 0, 32767),
		SilenceFrames:  getenvIntClamped("SILENCE_FRAMES", 10, 1, 100),
		TeardownGrace:  teardownGrace,

		// LiveKit token issuance
		LiveKitAPIKey:    os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: os.Getenv("LIVEKIT_API_SECRET"),
		LiveKitURL:       os.Getenv("LIVEKIT_URL"),
		TokenTTL:         tokenTTL,

		AssetsDir: getenv("ASSETS_DIR", ""),
	}
}

// Validate reports missing required credentials so startup can fail fast
// instead of surfacing auth errors on the first client connection.
func (c Config) Validate() error {
	var missing []string
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.LiveKitAPIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.LiveKitAPISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if c.LiveKitURL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required env: " + strings.Join(missing, ", "))
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
