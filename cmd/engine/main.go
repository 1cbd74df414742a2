package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/agentplexus/voiceengine/internal/providers/callsystem/twilio"
	memorystore "github.com/agentplexus/voiceengine/internal/providers/store/memory"
	"github.com/agentplexus/voiceengine/internal/providers/store/postgres"
	memoryquota "github.com/agentplexus/voiceengine/internal/providers/quota/memory"
	"github.com/agentplexus/voiceengine/internal/providers/quota/redis"
	redisv9 "github.com/redis/go-redis/v9"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/quota"
	"github.com/agentplexus/voiceengine/registry"
	"github.com/agentplexus/voiceengine/security"
	"github.com/agentplexus/voiceengine/store"
	"github.com/agentplexus/voiceengine/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voiceengine",
	Short: "Real-time voice agent runtime: STT/LLM/TTS pipeline orchestration over telephony and WebSocket media",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voice engine HTTP/WS server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./voiceengine.yaml)")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP/WS listen host")
	serveCmd.Flags().Int("port", 8080, "HTTP/WS listen port")
	serveCmd.Flags().String("public-ws-url", "", "externally reachable wss:// base URL for media bridging")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.public_ws_url", serveCmd.Flags().Lookup("public-ws-url"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration with the standard priority: CLI flags
// > environment variables > config file > defaults.
func loadConfig() (*Config, error) {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("telephony.concurrent_call_cap", 0)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("voiceengine")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("VOICE_ENGINE")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logLevel, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := telemetry.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "dev",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	engineStore, err := buildStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer engineStore.Close()

	limiter := buildQuotaLimiter(cfg.Redis)

	llmClient, err := buildLLMClient(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}
	sttClient, err := buildSTTClient(cfg.STT)
	if err != nil {
		return fmt.Errorf("build stt client: %w", err)
	}
	ttsClient, err := buildTTSClient(cfg.TTS)
	if err != nil {
		return fmt.Errorf("build tts client: %w", err)
	}
	knowledgeClient, err := buildKnowledgeClient(ctx, cfg.Knowledge, llmClient)
	if err != nil {
		return fmt.Errorf("build knowledge client: %w", err)
	}

	mediaTokens, err := security.NewMediaTokenIssuer([]byte(cfg.Security.JWTSecret))
	if err != nil {
		return fmt.Errorf("build media token issuer: %w", err)
	}
	apiKeys := security.NewAPIKeySigner([]byte(cfg.Security.APIKeySecret))

	carrier := twilio.New(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.DefaultFromNumber)

	assistantsByID := make(map[string]agent.Assistant, len(cfg.Assistants))
	assistantsByPhone := make(map[string]agent.Assistant, len(cfg.Assistants))
	for _, a := range cfg.Assistants {
		assistant := a.toAgent()
		assistantsByID[assistant.ID] = assistant
		if a.PhoneNumber != "" {
			assistantsByPhone[a.PhoneNumber] = assistant
		}
	}

	reg := registry.New()

	engine := &Engine{
		cfg:               *cfg,
		assistantsByID:    assistantsByID,
		assistantsByPhone: assistantsByPhone,
		stt:               sttClient,
		llm:               llmClient,
		tts:               ttsClient,
		store:             engineStore,
		quota:             limiter,
		carrier:           carrier,
		registry:          reg,
		knowledge:         knowledgeClient,
		mediaTokens:       mediaTokens,
		apiKeys:           apiKeys,
		metrics:           metrics,
		logger:            logger,
		recordingsDir:     "./recordings",
		egressSampleRate:  24000,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{Handler: engine.router()}
	go func() {
		logger.Info().Str("addr", addr).Msg("voice engine listening")
		if err := httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	reg.Shutdown(shutdownCtx)
	return httpSrv.Shutdown(shutdownCtx)
}

// buildStore constructs the Postgres-backed persistence layer when a DSN is
// configured, falling back to the in-memory store for single-instance or
// test runs.
func buildStore(ctx context.Context, cfg DatabaseConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return memorystore.New(), nil
	}
	return postgres.New(ctx, cfg.DSN)
}

// buildQuotaLimiter constructs the Redis-backed concurrent-call limiter
// when an address is configured, falling back to an in-process counter.
func buildQuotaLimiter(cfg RedisConfig) quota.Limiter {
	if cfg.Addr == "" {
		return memoryquota.New()
	}
	client := redisv9.NewClient(&redisv9.Options{Addr: cfg.Addr})
	return redis.New(client)
}
