// Command chaserd is the chaser-go process entry point: it loads config,
// opens the ambient settings database, builds a fixed demo environment and
// program (the external program-editor API is out of scope per spec.md's
// Non-goals), and wires sequencer -> renderer -> {artnet, mqttbridge}. It
// serves /health and /metrics for operability. Grounded on the teacher's
// cmd/server/main.go: same config-load -> db-connect -> service-construct
// -> chi-router -> graceful-shutdown shape, adapted from GraphQL+resolvers
// to this domain's render/transport pipeline.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bbernstein/chaser-go/internal/config"
	"github.com/bbernstein/chaser-go/internal/database"
	"github.com/bbernstein/chaser-go/internal/database/models"
	"github.com/bbernstein/chaser-go/internal/database/repositories"
	"github.com/bbernstein/chaser-go/internal/metrics"
	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/mqttbridge"
	"github.com/bbernstein/chaser-go/internal/services/renderer"
	"github.com/bbernstein/chaser-go/internal/services/sequencer"
	"github.com/bbernstein/chaser-go/pkg/artnet"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("📋 No .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 2,
		MaxOpenConn: 10,
		Debug:       cfg.Debug,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}
	defer database.Close()

	settings := repositories.NewSettingRepository(db)
	applyPersistedSettings(cfg, settings)

	env, catalog, program := demoEnvironment(cfg)

	seq := sequencer.New(env, catalog)
	seq.SetProgram(program, sequencer.ProgramOptions{})

	outputs, closers := buildOutputs(cfg, env, catalog, seq, []model.Program{program})
	rend := renderer.New(env, catalog, outputs)
	unsubscribe := rend.Attach(seq)

	printBanner(cfg, env)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	router.Get("/health", healthCheckHandler(seq))
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 chaserd listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down chaserd...")

	persistSettings(cfg, settings)

	unsubscribe()
	rend.Close()
	for _, c := range closers {
		c()
	}
	seq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("⚠️  HTTP server shutdown error: %v", err)
	}

	log.Println("✅ chaserd stopped")
}

// buildOutputs wires one renderer.Output per configured transport, plus a
// debug logging output, and returns their shutdown funcs in the order they
// should be called (Art-Net before MQTT mirrors construction order).
func buildOutputs(cfg *config.Config, env model.Environment, catalog map[string]model.FixtureType, seq *sequencer.Sequencer, programs []model.Program) ([]renderer.Output, []func()) {
	var outputs []renderer.Output
	var closers []func()

	outputs = append(outputs, renderer.NewLoggingOutput("debug"))

	if cfg.ArtNetEnabled {
		sender := artnet.NewSender(time.Duration(cfg.ArtNetRefreshMs) * time.Millisecond)
		sender.OnResult = func(host string, port, universe int, err error) {
			portLabel := strconv.Itoa(port)
			if err != nil {
				metrics.ArtNetSendErrors.WithLabelValues(host, portLabel).Inc()
				log.Printf("💡 artnet: send error to %s:%d universe %d: %v", host, port, universe, err)
				return
			}
			metrics.ArtNetPacketsSent.WithLabelValues(host, portLabel).Inc()
		}
		sender.Start()

		target := model.Output{
			ID:      "artnet-default",
			Kind:    model.OutputArtNet,
			Host:    cfg.ArtNetBroadcast,
			Port:    cfg.ArtNetPort,
			Enabled: true,
		}
		out := renderer.NewArtNetOutput(sender, target)
		outputs = append(outputs, out)
		closers = append(closers, func() {
			out.Close()
			sender.Stop()
		})
	}

	if cfg.MQTTEnabled {
		bridge := mqttbridge.NewBridge(mqttbridge.Config{
			EnvironmentID:   env.ID,
			OutputID:        "mqtt-default",
			BrokerURL:       cfg.MQTTBrokerURL,
			DiscoveryPrefix: cfg.MQTTDiscoveryPrefix,
		}, env, catalog, seq, programs)
		if err := bridge.Connect(); err != nil {
			log.Printf("📶 mqttbridge: initial connect failed, will keep retrying: %v", err)
		}
		outputs = append(outputs, bridge)
		closers = append(closers, bridge.Close)
	}

	return outputs, closers
}

// demoEnvironment builds the fixed fixture catalog, environment, and
// program this daemon drives. A real deployment would load these from the
// external program store (spec.md §1); that store is out of scope here, so
// a small in-repo demo stands in its place.
func demoEnvironment(cfg *config.Config) (model.Environment, map[string]model.FixtureType, model.Program) {
	parType := model.FixtureType{
		ID:            "par-rgb",
		Name:          "RGB Par",
		TotalChannels: 4,
		Features: []model.Feature{
			{ID: "rgb", Kind: model.FeatureRGB, Channels: []int{1, 2, 3}},
			{ID: "dimmer", Kind: model.FeatureScalar, Channels: []int{4}, HasRange: true, Min: 0, Max: 255},
		},
	}
	catalog := map[string]model.FixtureType{parType.ID: parType}

	env := model.Environment{
		ID:        "demo",
		RenderFps: 30,
		Fixtures: []model.EnvironmentFixture{
			{ID: "par-1", FixtureTypeID: parType.ID, Name: "Par 1", Universe: 0, Address: 1},
			{ID: "par-2", FixtureTypeID: parType.ID, Name: "Par 2", Universe: 0, Address: 5},
		},
	}

	program := model.Program{
		ID:            "demo-chase",
		Name:          "Demo Chase",
		EnvironmentID: env.ID,
		Spm:           60,
		Loop:          true,
		Steps: []model.ProgramStep{
			{
				ID: "step-red", DurationMs: 1000, FadeMs: 300,
				Frames: []model.FeatureFrame{
					{FixtureID: "par-1", FeatureID: "rgb", Value: []byte{255, 0, 0}},
					{FixtureID: "par-2", FeatureID: "rgb", Value: []byte{0, 0, 0}},
				},
			},
			{
				ID: "step-blue", DurationMs: 1000, FadeMs: 300,
				Frames: []model.FeatureFrame{
					{FixtureID: "par-1", FeatureID: "rgb", Value: []byte{0, 0, 0}},
					{FixtureID: "par-2", FeatureID: "rgb", Value: []byte{0, 0, 255}},
				},
			},
		},
	}

	return env, catalog, program
}

const (
	settingKeyArtNetBroadcast = "artnet.broadcast"
	settingKeyMQTTBrokerURL   = "mqtt.brokerUrl"
)

// applyPersistedSettings overrides cfg's transport targets with whatever
// was last saved, so a restart resumes pointing at the same Art-Net
// broadcast address and MQTT broker the operator last configured live.
func applyPersistedSettings(cfg *config.Config, settings *repositories.SettingRepository) {
	ctx := context.Background()
	if s, err := settings.FindByKey(ctx, settingKeyArtNetBroadcast); err == nil && s != nil {
		cfg.ArtNetBroadcast = s.Value
	}
	if s, err := settings.FindByKey(ctx, settingKeyMQTTBrokerURL); err == nil && s != nil {
		cfg.MQTTBrokerURL = s.Value
	}
}

// persistSettings saves the transport targets actually used this run, so
// the next start picks them back up via applyPersistedSettings.
func persistSettings(cfg *config.Config, settings *repositories.SettingRepository) {
	ctx := context.Background()
	if _, err := settings.Upsert(ctx, settingKeyArtNetBroadcast, cfg.ArtNetBroadcast); err != nil {
		log.Printf("⚠️  failed to persist %s: %v", settingKeyArtNetBroadcast, err)
	}
	if _, err := settings.Upsert(ctx, settingKeyMQTTBrokerURL, cfg.MQTTBrokerURL); err != nil {
		log.Printf("⚠️  failed to persist %s: %v", settingKeyMQTTBrokerURL, err)
	}
}

func printBanner(cfg *config.Config, env model.Environment) {
	log.Println("🎛  chaser-go")
	log.Printf("   env: %s (%s, %d fixtures)", cfg.Env, env.ID, len(env.Fixtures))
	log.Printf("   artnet: %v  mqtt: %v", cfg.ArtNetEnabled, cfg.MQTTEnabled)
}

type healthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	IsPlaying bool   `json:"isPlaying"`
	Spm       int    `json:"spm"`
}

func healthCheckHandler(seq *sequencer.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := seq.GetState()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:    "ok",
			Time:      time.Now().UTC().Format(time.RFC3339),
			IsPlaying: state.IsPlaying,
			Spm:       state.Spm,
		})
	}
}
