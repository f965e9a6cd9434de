package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/GauntletMC/Graphite/internal/api"
	"github.com/GauntletMC/Graphite/internal/auth"
	"github.com/GauntletMC/Graphite/internal/config"
	"github.com/GauntletMC/Graphite/internal/eventbus"
	"github.com/GauntletMC/Graphite/internal/generator"
	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/network"
	"github.com/GauntletMC/Graphite/internal/observability"
	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/storage"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

// version подставляется при сборке: -ldflags "-X main.version=..."
var version = "dev"

// spawnGenerator генератор, знающий высоту поверхности для точки входа
type spawnGenerator interface {
	world.ChunkSource
	SpawnY(x, z int) int
}

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию $GRAPHITE_CONFIG)")
	issueToken := flag.String("issue-token", "", "выпустить токен admin API для оператора и выйти")
	newSecret := flag.Bool("new-secret", false, "сгенерировать секрет для server.admin_secret и выйти")
	flag.Parse()

	if *newSecret {
		fmt.Println(auth.GenerateSecureSecret())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if *issueToken != "" {
		tokens, err := newIssuer(cfg.Server)
		if err != nil || tokens == nil {
			log.Fatalf("Токен не выпущен: нужен server.admin_secret (%v)", err)
		}
		token, err := tokens.Issue(*issueToken)
		if err != nil {
			log.Fatalf("Токен не выпущен: %v", err)
		}
		fmt.Println(token)
		return
	}
	if err := initLogging(cfg.Logging); err != nil {
		log.Fatalf("Ошибка инициализации логирования: %v", err)
	}
	defer logging.GetLoggerManager().CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Сервер остановлен с ошибкой: %v", err)
		os.Exit(1)
	}
	logging.Info("Сервер успешно остановлен")
}

func initLogging(cfg config.LoggingConfig) error {
	console, err := logging.ParseLevel(cfg.ConsoleLevel)
	if err != nil {
		return err
	}
	file, err := logging.ParseLevel(cfg.FileLevel)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{Dir: cfg.Dir, ConsoleLevel: console, FileLevel: file}); err != nil {
		return err
	}
	return logging.GetLoggerManager().ApplyOverrides(cfg.Components)
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info("Запуск %s: мир %s, протокол %d", cfg.Server.Brand, cfg.World.Name, protocol.Version)

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     version,
			World:       cfg.World.Name,
			Protocol:    protocol.Version,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Warn("Остановка телеметрии: %v", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	var exporter *eventbus.MetricsExporter
	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logging.Warn("Закрытие шины событий: %v", err)
			}
		}()
		if _, err := eventbus.StartLoggingListener(bus, nil); err != nil {
			return err
		}
		exporter = eventbus.NewMetricsExporter(bus, reg)
	}

	store, err := storage.OpenChunkStore(storage.ChunkStoreOptions{
		Path:        cfg.Storage.Path,
		InMemory:    cfg.Storage.InMemory,
		Compression: cfg.Storage.Compression,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	positions, err := openPositions(ctx, cfg)
	if err != nil {
		return err
	}
	defer positions.Close()

	dim := chunk.Overworld
	dim.Name = cfg.World.Name
	dim.MinY = cfg.World.MinY
	dim.Height = cfg.World.Height

	gen, err := newGenerator(cfg.World, dim)
	if err != nil {
		return err
	}

	uni := world.NewUniverse(cfg.Server.Brand, cfg.Server.MaxPlayers, protocol.DefaultRegistryCodec(dim))
	chunks := store.World(cfg.World.Name, dim)
	w, err := world.New(
		world.NewSettings(uni, cfg.World.Name, dim, cfg.World.Seed, cfg.World.SimulationDistance),
		world.Chain{chunks, gen},
		world.Options{
			Sink:           chunks,
			Positions:      positions,
			Events:         bus,
			Metrics:        world.NewMetrics(reg),
			TickRate:       cfg.World.TickRate,
			UnloadGrace:    cfg.World.UnloadGrace,
			LoadRetries:    cfg.World.LoadRetries,
			LoadTimeout:    cfg.World.LoadTimeout,
			ChunkSendRate:  cfg.World.ChunkSendRate,
			ChunkSendBurst: cfg.World.ChunkSendBurst,
		},
	)
	if err != nil {
		return err
	}
	if err := uni.AddWorld(w); err != nil {
		return err
	}

	spawn := vec.Position{Coord: vec.NewCoordinate(0.5, float64(gen.SpawnY(0, 0)), 0.5)}
	if cfg.World.PreloadRadius > 0 {
		pctx, cancel := context.WithTimeout(ctx, time.Minute)
		err := w.Preload(pctx, vec.ChunkPosOf(spawn.Coord), cfg.World.PreloadRadius)
		cancel()
		if err != nil {
			w.Close()
			return fmt.Errorf("preload spawn: %w", err)
		}
	}

	shape := view.Square
	if cfg.World.ViewShape == "circle" {
		shape = view.Circle
	}
	srv, err := network.NewServer(network.Config{
		Addr:              cfg.Network.Listen,
		World:             w,
		Spawn:             spawn,
		Positions:         positions,
		MOTD:              cfg.Network.MOTD,
		GameMode:          cfg.Network.GameMode,
		Hardcore:          cfg.Server.Hardcore,
		ViewDistance:      cfg.World.ViewDistance,
		ViewShape:         shape,
		KeepAliveInterval: cfg.Network.KeepAliveInterval,
		Timeout:           cfg.Network.Timeout,
		JoinTimeout:       cfg.Network.JoinTimeout,
		Registry:          reg,
	})
	if err != nil {
		w.Close()
		return err
	}

	tokens, err := newIssuer(cfg.Server)
	if err != nil {
		w.Close()
		return err
	}
	if tokens == nil {
		logging.Warn("server.admin_secret не задан: POST-запросы admin API без авторизации")
	}

	metricsPort := cfg.Server.GetMetricsPort()
	adminCfg := api.Config{
		Addr:      ":" + strconv.Itoa(cfg.Server.GetAdminPort()),
		Universe:  uni,
		Tokens:    tokens,
		Positions: positions,
	}
	if metricsPort == 0 {
		adminCfg.Registry = reg
	}
	admin := api.NewAdminServer(adminCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return uni.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return admin.Run(gctx) })
	if metricsPort > 0 {
		g.Go(func() error { return serveMetrics(gctx, metricsPort, reg) })
	}
	if exporter != nil {
		g.Go(func() error {
			exporter.Run(gctx, 5*time.Second)
			return nil
		})
	}

	logging.Info("Игровой порт %s, admin API :%d", cfg.Network.Listen, cfg.Server.GetAdminPort())
	return g.Wait()
}

// newIssuer nil, если секрет не задан
func newIssuer(cfg config.ServerConfig) (*auth.Issuer, error) {
	secret := cfg.GetAdminSecret()
	if secret == "" {
		return nil, nil
	}
	return auth.NewIssuer(secret, cfg.AdminTokenTTL)
}

// openEventBus поднимает шину по конфигурации. Для "none" возвращается nil.
func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "nats":
		js, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("eventbus: %w", err)
		}
		logging.Info("Шина событий NATS JetStream %s, стрим %s", cfg.URL, cfg.Stream)
		return js, nil
	default:
		return eventbus.NewMemoryBus(1024), nil
	}
}

// openPositions выбирает хранилище позиций игроков
func openPositions(ctx context.Context, cfg *config.Config) (storage.PositionRepo, error) {
	switch cfg.Storage.Positions {
	case "redis":
		rc := storage.DefaultRedisConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		return storage.NewRedisPositionRepo(ctx, rc)
	case "mysql":
		return storage.NewMariaPositionRepo(ctx, cfg.Storage.MySQLDSN)
	default:
		return storage.NewMemoryPositionRepo(), nil
	}
}

func newGenerator(cfg config.WorldConfig, dim chunk.Dimension) (spawnGenerator, error) {
	if cfg.Generator == "flat" {
		layers, err := generator.ParseLayers(cfg.FlatLayers)
		if err != nil {
			return nil, err
		}
		return generator.NewFlatGenerator(dim, layers)
	}
	return generator.NewTerrainGenerator(dim, generator.DefaultTerrainOptions(cfg.Seed))
}

// serveMetrics отдаёт /metrics на отдельном порту
func serveMetrics(ctx context.Context, port int, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logging.Info("Метрики Prometheus на :%d/metrics", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
