package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/GauntletMC/Graphite/internal/auth"
	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/middleware"
	"github.com/GauntletMC/Graphite/internal/storage"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
)

// ErrKicked причина отключения игрока через admin API
var ErrKicked = errors.New("kicked by operator")

// PositionResetter сбрасывает сохранённую точку входа игрока
type PositionResetter interface {
	DeletePosition(ctx context.Context, id uuid.UUID) error
}

// Config содержит конфигурацию admin-сервера
type Config struct {
	Addr      string               // адрес, например ":8088"
	Universe  *world.Universe      // миры сервера
	Registry  *prometheus.Registry // реестр метрик; nil - без /metrics
	Tokens    *auth.Issuer         // проверка токенов операторов; nil - изменения без авторизации
	Positions PositionResetter     // nil - сброс позиций недоступен
	Logger    *logging.Logger
}

// AdminServer HTTP API для наблюдения за мирами
type AdminServer struct {
	router    *gin.Engine
	addr      string
	universe  *world.Universe
	health    *healthProbe
	tokens    *auth.Issuer
	positions PositionResetter
	log       *logging.Logger
}

// GenericResponse общий формат ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewAdminServer создает сервер и настраивает маршруты
func NewAdminServer(config Config) *AdminServer {
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetServerLogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("graphite_admin"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	if config.Registry != nil {
		router.Use(middleware.NewAdminMetrics("graphite_admin", config.Registry).Handler())
		middleware.RegisterMetricsEndpoint(router, config.Registry)
	}

	s := &AdminServer{
		router:    router,
		addr:      config.Addr,
		universe:  config.Universe,
		health:    newHealthProbe(),
		tokens:    config.Tokens,
		positions: config.Positions,
		log:       config.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler маршрутизатор сервера
func (s *AdminServer) Handler() http.Handler { return s.router }

func (s *AdminServer) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/worlds", s.handleWorlds)
		api.DELETE("/players/:uuid/position", s.operatorMiddleware(), s.handleResetPosition)
		api.GET("/logging", s.handleLogLevels)
		api.PUT("/logging/:component", s.operatorMiddleware(), s.handleSetLogLevel)

		w := api.Group("/worlds/:world")
		w.Use(s.worldMiddleware())
		{
			w.GET("", s.handleWorld)
			w.GET("/players", s.handlePlayers)
			w.GET("/chunks/:x/:z", s.handleChunk)
			w.POST("/players/:uuid/kick", s.operatorMiddleware(), s.handleKick)
			w.POST("/preload", s.operatorMiddleware(), s.handlePreload)
			w.POST("/unpin", s.operatorMiddleware(), s.handleUnpin)
		}
	}
}

// Run обслуживает запросы до отмены ctx
func (s *AdminServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Admin API слушает %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// operatorMiddleware проверяет Bearer-токен оператора
func (s *AdminServer) operatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			c.Next()
			return
		}

		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{Message: "нужен токен оператора"})
			return
		}
		claims, err := s.tokens.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{Message: "недействительный токен"})
			return
		}

		c.Set(middleware.KeyOperator, claims.Operator)
		c.Next()
	}
}

// worldMiddleware находит мир по имени из пути
func (s *AdminServer) worldMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := s.universe.World(c.Param("world"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, GenericResponse{Message: "мир не найден"})
			return
		}
		c.Set("world", w)
		c.Next()
	}
}

func worldFrom(c *gin.Context) *world.World {
	return c.MustGet("world").(*world.World)
}

// handleHealth проверка состояния сервера; ?detailed=1 добавляет статистику миров
func (s *AdminServer) handleHealth(c *gin.Context) {
	detailed, _ := strconv.ParseBool(c.Query("detailed"))
	c.JSON(http.StatusOK, s.health.snapshot(s.universe.Worlds(), detailed))
}

func (s *AdminServer) handleWorlds(c *gin.Context) {
	worlds := s.universe.Worlds()
	stats := make([]world.Stats, 0, len(worlds))
	for _, w := range worlds {
		stats = append(stats, w.Stats())
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: stats})
}

func (s *AdminServer) handleWorld(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: worldFrom(c).Stats()})
}

// PlayerInfo игрок в ответе API
type PlayerInfo struct {
	UUID     uuid.UUID    `json:"uuid"`
	Name     string       `json:"name"`
	EntityID int32        `json:"entity_id"`
	Position vec.Position `json:"position"`
	Tracked  int          `json:"tracked_chunks"`
	Pending  int          `json:"pending_chunks"`
}

func (s *AdminServer) handlePlayers(c *gin.Context) {
	players := worldFrom(c).Players()
	out := make([]PlayerInfo, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerInfo{
			UUID:     p.UUID(),
			Name:     p.Name(),
			EntityID: p.EntityID(),
			Position: p.Position(),
			Tracked:  len(p.TrackedChunks()),
			Pending:  len(p.PendingChunks()),
		})
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: out})
}

func (s *AdminServer) handleKick(c *gin.Context) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "некорректный UUID"})
		return
	}
	w := worldFrom(c)
	p, ok := w.Player(id)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "игрок не найден"})
		return
	}
	w.RemovePlayer(p, ErrKicked)
	s.log.Info("Игрок %s отключён через admin API оператором %q", p.Name(), c.GetString(middleware.KeyOperator))
	c.JSON(http.StatusOK, GenericResponse{Success: true})
}

// ChunkInfo состояние чанка в ответе API
type ChunkInfo struct {
	X         int32  `json:"x"`
	Z         int32  `json:"z"`
	Status    string `json:"status"`
	Sections  int    `json:"sections"`
	NonEmpty  int    `json:"non_empty_sections"`
	MaxHeight int    `json:"max_height"`
}

func parseChunkPos(c *gin.Context) (vec.ChunkPos, bool) {
	x, errX := strconv.ParseInt(c.Param("x"), 10, 32)
	z, errZ := strconv.ParseInt(c.Param("z"), 10, 32)
	if errX != nil || errZ != nil {
		return vec.ChunkPos{}, false
	}
	return vec.ChunkPos{X: int32(x), Z: int32(z)}, true
}

func (s *AdminServer) handleChunk(c *gin.Context) {
	pos, ok := parseChunkPos(c)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "некорректные координаты"})
		return
	}
	ch, ok := worldFrom(c).Chunk(pos)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "чанк не загружен"})
		return
	}

	info := ChunkInfo{X: pos.X, Z: pos.Z, Status: ch.Status().String(), Sections: len(ch.Sections())}
	for _, sec := range ch.Sections() {
		if !sec.IsEmpty() {
			info.NonEmpty++
		}
	}
	info.MaxHeight = ch.Dimension().MinY
	for _, h := range ch.Heightmap() {
		if int(h) > info.MaxHeight {
			info.MaxHeight = int(h)
		}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: info})
}

// PreloadRequest запрос предзагрузки области
type PreloadRequest struct {
	X      int32 `json:"x"`
	Z      int32 `json:"z"`
	Radius int32 `json:"radius"`
}

func bindPreload(c *gin.Context) (PreloadRequest, bool) {
	var req PreloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return req, false
	}
	if req.Radius < 0 || req.Radius > 32 {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "radius вне 0..32"})
		return req, false
	}
	return req, true
}

func (s *AdminServer) handlePreload(c *gin.Context) {
	req, ok := bindPreload(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	center := vec.ChunkPos{X: req.X, Z: req.Z}
	if err := worldFrom(c).Preload(ctx, center, req.Radius); err != nil {
		s.log.Warn("Предзагрузка %s r=%d: %v", center, req.Radius, err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true})
}

// handleUnpin снимает закрепление, поставленное тем же запросом в /preload
func (s *AdminServer) handleUnpin(c *gin.Context) {
	req, ok := bindPreload(c)
	if !ok {
		return
	}
	worldFrom(c).Unpin(vec.ChunkPos{X: req.X, Z: req.Z}, req.Radius)
	c.JSON(http.StatusOK, GenericResponse{Success: true})
}

func (s *AdminServer) handleResetPosition(c *gin.Context) {
	if s.positions == nil {
		c.JSON(http.StatusNotImplemented, GenericResponse{Message: "хранилище позиций не подключено"})
		return
	}
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "некорректный UUID"})
		return
	}
	err = s.positions.DeletePosition(c.Request.Context(), id)
	if errors.Is(err, storage.ErrPositionNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "позиция не сохранена"})
		return
	}
	if err != nil {
		s.log.Warn("Сброс позиции %s: %v", id, err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: err.Error()})
		return
	}
	s.log.Info("Позиция %s сброшена оператором %q", id, c.GetString(middleware.KeyOperator))
	c.JSON(http.StatusOK, GenericResponse{Success: true})
}

// LogLevelInfo уровни компонента в ответе API
type LogLevelInfo struct {
	Console string `json:"console"`
	File    string `json:"file"`
}

func (s *AdminServer) handleLogLevels(c *gin.Context) {
	comps := logging.GetLoggerManager().Components()
	out := make(map[string]LogLevelInfo, len(comps))
	for name, lv := range comps {
		out[name] = LogLevelInfo{Console: lv.Console.String(), File: lv.File.String()}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: out})
}

// handleSetLogLevel меняет уровни компонента без перезапуска; пустой file равен console
func (s *AdminServer) handleSetLogLevel(c *gin.Context) {
	var req LogLevelInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}
	console, err := logging.ParseLevel(req.Console)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}
	file := console
	if req.File != "" {
		if file, err = logging.ParseLevel(req.File); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
			return
		}
	}

	component := c.Param("component")
	if err := logging.GetLoggerManager().SetLogLevel(component, console, file); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}
	s.log.Info("Уровень логов %s: console=%s file=%s (оператор %q)", component, console, file, c.GetString(middleware.KeyOperator))
	c.JSON(http.StatusOK, GenericResponse{Success: true})
}
