package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drewpri411/kaathumaaa/internal/server"
	"github.com/drewpri411/kaathumaaa/pkg/agent"
	llmfake "github.com/drewpri411/kaathumaaa/pkg/ai/llm/fake"
	llmopenai "github.com/drewpri411/kaathumaaa/pkg/ai/llm/openai"
	sttfake "github.com/drewpri411/kaathumaaa/pkg/ai/stt/fake"
	sttopenai "github.com/drewpri411/kaathumaaa/pkg/ai/stt/openai"
	ttsfake "github.com/drewpri411/kaathumaaa/pkg/ai/tts/fake"
	ttsopenai "github.com/drewpri411/kaathumaaa/pkg/ai/tts/openai"
	"github.com/drewpri411/kaathumaaa/pkg/ai/vad"
	"github.com/drewpri411/kaathumaaa/pkg/ai/vad/silero"
	"github.com/drewpri411/kaathumaaa/pkg/audio/wav"
	"github.com/drewpri411/kaathumaaa/pkg/backchannel"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kaathumaaa",
	Short: "Real-time spoken dialogue server with natural turn-taking",
	Long: `kaathumaaa is a voice agent server that listens on a WebSocket PCM
transport and holds a spoken conversation: multi-signal turn-end detection,
overlapping-chunk transcription, backchannels and barge-in interruption.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voice agent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Log)
		slog.SetDefault(logger)

		logger.Info("starting server",
			"version", version.Version,
			"commit", version.GitCommit,
			"vad", cfg.VAD.Provider,
			"fake_collaborators", cfg.OpenAI.APIKey == "")

		lib, err := backchannel.LoadLibrary(
			cfg.Backchannel.Dir, cfg.Audio.SampleRate, cfg.Audio.FrameDuration,
			cfg.Backchannel.Volume, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv := server.New(cfg, collaboratorFactory(cfg, logger), lib, logger)
		return srv.Run(ctx)
	},
}

var genBackchannelsCmd = &cobra.Command{
	Use:   "gen-backchannels",
	Short: "Generate placeholder backchannel WAV clips",
	Long: `Writes short tone WAV files (mmhmm, okay, yeah, i_see, right) into the
configured backchannel directory. Replace them with recorded clips for
production use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Backchannel.Dir, 0o755); err != nil {
			return err
		}
		clips := map[string]float64{
			"mmhmm": 220, "okay": 260, "yeah": 300, "i_see": 340, "right": 380,
		}
		for name, freq := range clips {
			path := filepath.Join(cfg.Backchannel.Dir, name+".wav")
			if err := wav.WriteToneFile(path, cfg.Audio.SampleRate, freq, 400*time.Millisecond); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Printf("wrote %s\n", path)
		}
		return nil
	},
}

// collaboratorFactory wires providers per session. With no API key every
// collaborator is a fake, which keeps the full pipeline runnable offline.
func collaboratorFactory(cfg *config.Config, logger *slog.Logger) server.Factory {
	return func() (agent.Collaborators, error) {
		var c agent.Collaborators

		switch cfg.VAD.Provider {
		case "silero":
			v, err := silero.New(silero.Config{
				ModelPath:  cfg.VAD.ModelPath,
				SampleRate: cfg.Audio.SampleRate,
			})
			if err != nil {
				logger.Warn("silero unavailable, using energy vad", "error", err)
				c.VAD = vad.NewEnergyVAD()
			} else {
				c.VAD = v
			}
		default:
			c.VAD = vad.NewEnergyVAD()
		}

		if cfg.OpenAI.APIKey == "" {
			c.STT = sttfake.NewFakeSTT()
			c.LLM = llmfake.NewFakeLLM("Okay.")
			c.TTS = ttsfake.NewFakeTTS(0)
			return c, nil
		}

		var err error
		if c.STT, err = sttopenai.NewWhisperSTT(sttopenai.Config{
			APIKey: cfg.OpenAI.APIKey,
			Model:  cfg.OpenAI.STTModel,
		}, logger); err != nil {
			return c, err
		}
		if c.LLM, err = llmopenai.NewChatLLM(llmopenai.Config{
			APIKey: cfg.OpenAI.APIKey,
			Model:  cfg.OpenAI.LLMModel,
		}); err != nil {
			return c, err
		}
		if c.TTS, err = ttsopenai.NewSpeechTTS(ttsopenai.Config{
			APIKey:        cfg.OpenAI.APIKey,
			Model:         cfg.OpenAI.TTSModel,
			Voice:         cfg.OpenAI.TTSVoice,
			SampleRate:    cfg.Audio.SampleRate,
			FrameDuration: cfg.Audio.FrameDuration,
		}, logger); err != nil {
			return c, err
		}
		return c, nil
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(versionCmd, serveCmd, genBackchannelsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
