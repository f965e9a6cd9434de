package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

var (
	// ErrTimeout клиент не ответил на Keep Alive вовремя
	ErrTimeout = errors.New("timed out")
	// ErrServerFull достигнут лимит игроков
	ErrServerFull = errors.New("server is full")
	// ErrProtocolVersion клиент другой версии
	ErrProtocolVersion = errors.New("unsupported protocol version")
	// ErrShutdown сервер останавливается
	ErrShutdown = errors.New("server shutting down")

	errBadKeepAlive = errors.New("unexpected keep alive")
	errClientGone   = errors.New("client disconnected")
)

// PositionLoader источник последней позиции игрока для повторного входа
type PositionLoader interface {
	LoadPosition(ctx context.Context, id uuid.UUID) (vec.Position, bool, error)
}

// Config настройки сетевого сервера
type Config struct {
	Addr              string
	World             *world.World
	Spawn             vec.Position
	Positions         PositionLoader // nil - всегда точка спавна
	MOTD              string
	GameMode          uint8
	Hardcore          bool
	ViewDistance      int32
	ViewShape         view.Shape
	KeepAliveInterval time.Duration
	Timeout           time.Duration // Без входящих пакетов дольше - отключение
	JoinTimeout       time.Duration // Загрузка чанка спавна
	Registry          prometheus.Registerer
	Logger            *logging.Logger
}

type netMetrics struct {
	connections prometheus.Gauge
	logins      *prometheus.CounterVec
	pings       prometheus.Counter
	packetsIn   prometheus.Counter
	bytesOut    prometheus.Counter
}

func newNetMetrics(reg prometheus.Registerer) netMetrics {
	m := netMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphite", Subsystem: "network", Name: "connections",
			Help: "Открытые TCP-соединения.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphite", Subsystem: "network", Name: "logins_total",
			Help: "Попытки входа по результату.",
		}, []string{"result"}),
		pings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphite", Subsystem: "network", Name: "status_requests_total",
			Help: "Запросы статуса из списка серверов.",
		}),
		packetsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphite", Subsystem: "network", Name: "packets_in_total",
			Help: "Принятые пакеты.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphite", Subsystem: "network", Name: "bytes_out_total",
			Help: "Отправленные байты.",
		}),
	}
	reg.MustRegister(m.connections, m.logins, m.pings, m.packetsIn, m.bytesOut)
	return m
}

// Server принимает клиентов протокола 763 в offline-режиме (без шифрования и сжатия)
type Server struct {
	cfg Config
	log *logging.Logger
	m   netMetrics

	mu     sync.Mutex
	conns  map[uint64]*Conn
	nextID uint64
	wg     sync.WaitGroup
}

// NewServer проверяет конфигурацию
func NewServer(cfg Config) (*Server, error) {
	if cfg.World == nil {
		return nil, fmt.Errorf("network: world is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":25565"
	}
	if cfg.ViewDistance <= 0 {
		cfg.ViewDistance = 8
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetComponentLogger("network")
	}
	return &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		m:     newNetMetrics(cfg.Registry),
		conns: make(map[uint64]*Conn),
	}, nil
}

// Run слушает cfg.Addr до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve принимает соединения с ln до отмены ctx, затем закрывает всех клиентов
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Сервер слушает %s (протокол %d)", ln.Addr(), protocol.Version)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.keepAliveLoop(ctx)
	}()

	var acceptErr error
	for {
		sock, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		s.mu.Lock()
		s.nextID++
		c := newConn(s.nextID, sock, s)
		s.conns[c.id] = c
		s.mu.Unlock()
		s.m.connections.Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, c)
		}()
	}

	for _, c := range s.snapshot() {
		c.Close(ErrShutdown)
	}
	s.wg.Wait()
	return acceptErr
}

// Connections число открытых соединений
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) snapshot() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.m.connections.Dec()
}

// keepAliveLoop пингует игроков и отключает молчащих
func (s *Server) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, c := range s.snapshot() {
				if !c.inPlay.Load() || c.isClosed() {
					continue
				}
				if now.Sub(time.Unix(0, c.lastPong.Load())) > s.cfg.Timeout {
					s.log.Warn("Соединение %d (%s): нет ответа на Keep Alive", c.id, c.Name())
					c.Close(ErrTimeout)
					continue
				}
				if err := c.sendKeepAlive(now); err != nil {
					s.log.Debug("Keep Alive для %s: %v", c.Name(), err)
				}
			}
		}
	}
}
