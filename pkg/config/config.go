// Package config loads and validates the runtime-tunable parameters of the
// voice agent. Values come from an optional YAML file, overridden by
// environment variables (KAATHUMAAA_*). Nothing in the decision core reads a
// compiled constant for any of these.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete parameter set consumed by the core.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Audio       AudioConfig       `mapstructure:"audio"`
	VAD         VADConfig         `mapstructure:"vad"`
	Turn        TurnConfig        `mapstructure:"turn"`
	Backchannel BackchannelConfig `mapstructure:"backchannel"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type AudioConfig struct {
	SampleRate    int           `mapstructure:"sample_rate"`
	FrameDuration time.Duration `mapstructure:"frame_duration"`
	BufferWindow  time.Duration `mapstructure:"buffer_window"` // ring buffer bound
	ChunkWindow   time.Duration `mapstructure:"chunk_window"`  // transcription window
	ChunkOverlap  time.Duration `mapstructure:"chunk_overlap"` // shared with previous chunk
}

type VADConfig struct {
	Provider         string  `mapstructure:"provider"` // "energy" or "silero"
	ModelPath        string  `mapstructure:"model_path"`
	Threshold        float32 `mapstructure:"threshold"`
	HysteresisFrames int     `mapstructure:"hysteresis_frames"`
}

type TurnConfig struct {
	ShortPause       time.Duration `mapstructure:"short_pause"`
	LongPause        time.Duration `mapstructure:"long_pause"`
	SilenceWeight    float64       `mapstructure:"silence_weight"`
	LinguisticWeight float64       `mapstructure:"linguistic_weight"`
	ContextWeight    float64       `mapstructure:"context_weight"`
	EndThreshold     float64       `mapstructure:"end_threshold"`
	ContextDecay     float64       `mapstructure:"context_decay"` // EWMA decay for turn history
	HistoryTurns     int           `mapstructure:"history_turns"` // turns averaged before the decay applies
}

type BackchannelConfig struct {
	BaseProbability float64       `mapstructure:"base_probability"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	SafeZone        time.Duration `mapstructure:"safe_zone"`
	Volume          float64       `mapstructure:"volume"`
	Dir             string        `mapstructure:"dir"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	STTModel    string  `mapstructure:"stt_model"`
	LLMModel    string  `mapstructure:"llm_model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	TTSModel    string  `mapstructure:"tts_model"`
	TTSVoice    string  `mapstructure:"tts_voice"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_duration", 30*time.Millisecond)
	v.SetDefault("audio.buffer_window", 30*time.Second)
	v.SetDefault("audio.chunk_window", 1500*time.Millisecond)
	v.SetDefault("audio.chunk_overlap", 500*time.Millisecond)

	v.SetDefault("vad.provider", "energy")
	v.SetDefault("vad.model_path", "models/silero_vad.onnx")
	v.SetDefault("vad.threshold", 0.5)
	v.SetDefault("vad.hysteresis_frames", 3)

	v.SetDefault("turn.short_pause", 400*time.Millisecond)
	v.SetDefault("turn.long_pause", 1500*time.Millisecond)
	v.SetDefault("turn.silence_weight", 0.40)
	v.SetDefault("turn.linguistic_weight", 0.35)
	v.SetDefault("turn.context_weight", 0.25)
	v.SetDefault("turn.end_threshold", 65)
	v.SetDefault("turn.context_decay", 0.30)
	v.SetDefault("turn.history_turns", 5)

	v.SetDefault("backchannel.base_probability", 0.40)
	v.SetDefault("backchannel.min_interval", 5*time.Second)
	v.SetDefault("backchannel.safe_zone", 300*time.Millisecond)
	v.SetDefault("backchannel.volume", 0.5)
	v.SetDefault("backchannel.dir", "backchannels")

	v.SetDefault("openai.stt_model", "whisper-1")
	v.SetDefault("openai.llm_model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.tts_model", "tts-1")
	v.SetDefault("openai.tts_voice", "alloy")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from path (optional) and the environment, applies
// defaults, and validates. Validation failures are fatal at startup by
// design: a misconfigured decision core must not run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KAATHUMAAA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, mostly used by tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Validate enforces the invariants that make the decision core sound.
func (c *Config) Validate() error {
	sum := c.Turn.SilenceWeight + c.Turn.LinguisticWeight + c.Turn.ContextWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("turn fusion weights must sum to 1.0, got %.3f", sum)
	}
	for name, w := range map[string]float64{
		"silence":    c.Turn.SilenceWeight,
		"linguistic": c.Turn.LinguisticWeight,
		"context":    c.Turn.ContextWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("turn %s weight out of [0,1]: %.3f", name, w)
		}
	}
	if c.Turn.ShortPause <= 0 || c.Turn.LongPause <= c.Turn.ShortPause {
		return fmt.Errorf("silence bands must satisfy 0 < short_pause < long_pause, got %v/%v",
			c.Turn.ShortPause, c.Turn.LongPause)
	}
	if c.Audio.ChunkOverlap >= c.Audio.ChunkWindow {
		return fmt.Errorf("chunk_overlap %v must be smaller than chunk_window %v",
			c.Audio.ChunkOverlap, c.Audio.ChunkWindow)
	}
	if c.Audio.FrameDuration <= 0 || c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio format: rate=%d frame=%v", c.Audio.SampleRate, c.Audio.FrameDuration)
	}
	if p := c.Backchannel.BaseProbability; p < 0 || p > 1 {
		return fmt.Errorf("backchannel base_probability out of [0,1]: %.3f", p)
	}
	if vol := c.Backchannel.Volume; vol < 0 || vol > 1 {
		return fmt.Errorf("backchannel volume out of [0,1]: %.3f", vol)
	}
	if d := c.Turn.ContextDecay; d <= 0 || d >= 1 {
		return fmt.Errorf("turn context_decay must be in (0,1), got %.3f", d)
	}
	if c.Turn.HistoryTurns < 1 {
		return fmt.Errorf("turn history_turns must be >= 1, got %d", c.Turn.HistoryTurns)
	}
	if c.VAD.HysteresisFrames < 1 {
		return fmt.Errorf("vad hysteresis_frames must be >= 1, got %d", c.VAD.HysteresisFrames)
	}
	return nil
}

// FrameSamples returns the samples per capture frame.
func (c *AudioConfig) FrameSamples() int {
	return int(c.FrameDuration * time.Duration(c.SampleRate) / time.Second)
}

// ChunkFrames returns whole frames per transcription window.
func (c *AudioConfig) ChunkFrames() int {
	return int(c.ChunkWindow / c.FrameDuration)
}

// OverlapFrames returns whole frames shared between consecutive windows.
func (c *AudioConfig) OverlapFrames() int {
	return int(c.ChunkOverlap / c.FrameDuration)
}
