package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
)

// handle ведёт соединение от рукопожатия до отключения
func (s *Server) handle(ctx context.Context, c *Conn) {
	defer s.forget(c)

	err := s.serveConn(ctx, c)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		err = errClientGone
	default:
		s.log.Debug("Соединение %d (%s): %v", c.id, c.RemoteAddr(), err)
	}
	c.Close(err)
}

func (s *Server) serveConn(ctx context.Context, c *Conn) error {
	p, err := c.readPacket(s.cfg.Timeout)
	if err != nil {
		return err
	}
	hs, err := protocol.ReadHandshake(p)
	if err != nil {
		return err
	}

	switch hs.Next {
	case protocol.StateStatus:
		return s.handleStatus(c)
	case protocol.StateLogin:
		return s.handleLogin(ctx, c, hs)
	default:
		return fmt.Errorf("handshake: unknown next state %d", hs.Next)
	}
}

// handleStatus отвечает на запрос статуса и пинг
func (s *Server) handleStatus(c *Conn) error {
	s.m.pings.Inc()
	b := protocol.NewBuffer()

	p, err := c.readPacket(s.cfg.Timeout)
	if err != nil {
		return err
	}
	if protocol.PacketID(p.ID) != protocol.StatusRequestID {
		return fmt.Errorf("status: unexpected packet 0x%02X", p.ID)
	}
	uni := s.cfg.World.Service().Universe()
	info := protocol.NewStatusInfo(s.cfg.MOTD, uni.MaxPlayers(), len(s.cfg.World.Players()))
	if err := protocol.WriteStatusResponse(b, info); err != nil {
		return err
	}
	if err := c.Write(b.Bytes()); err != nil {
		return err
	}
	b.Reset()

	p, err = c.readPacket(s.cfg.Timeout)
	if err != nil {
		return err
	}
	if protocol.PacketID(p.ID) != protocol.PingRequestID {
		return fmt.Errorf("status: unexpected packet 0x%02X", p.ID)
	}
	payload, err := protocol.ReadPing(p)
	if err != nil {
		return err
	}
	if err := protocol.WritePong(b, payload); err != nil {
		return err
	}
	if err := c.Write(b.Bytes()); err != nil {
		return err
	}
	return errClientGone
}

// handleLogin проводит offline-вход и передаёт игрока миру
func (s *Server) handleLogin(ctx context.Context, c *Conn, hs protocol.Handshake) error {
	// Login Start читается до проверки версии, чтобы отказ дошёл до клиента
	p, err := c.readPacket(s.cfg.Timeout)
	if err != nil {
		return err
	}
	ls, err := protocol.ReadLoginStart(p)
	if err != nil {
		return err
	}
	c.name.Store(ls.Name)

	if hs.Protocol != protocol.Version {
		s.m.logins.WithLabelValues("version").Inc()
		return fmt.Errorf("%w: client %d, server %d", ErrProtocolVersion, hs.Protocol, protocol.Version)
	}

	w := s.cfg.World
	uni := w.Service().Universe()
	if int32(len(w.Players())) >= uni.MaxPlayers() {
		s.m.logins.WithLabelValues("full").Inc()
		return ErrServerFull
	}

	profile := world.NewProfile(ls.Name, world.OfflineUUID(ls.Name), s.cfg.GameMode, s.cfg.ViewDistance, s.cfg.ViewShape)
	pos, err := s.prepareSpawn(ctx, profile)
	if err != nil {
		s.m.logins.WithLabelValues("spawn").Inc()
		return err
	}
	player, err := s.join(c, profile, pos)
	w.Unpin(vec.ChunkPosOf(pos.Coord), 0)
	if err != nil {
		s.m.logins.WithLabelValues("aborted").Inc()
		return err
	}
	s.m.logins.WithLabelValues("ok").Inc()
	s.log.Info("%s (%s) вошёл с %s", profile.Name(), profile.UUID(), c.RemoteAddr())

	err = s.play(c, player)
	// Мир сам отключает игрока при ошибке записи, повторное удаление безопасно
	w.RemovePlayer(player, errClientGoneOr(err))
	return err
}

// join завершает Login и передаёт соединение миру
func (s *Server) join(c *Conn, profile *world.Profile, pos vec.Position) (*world.Player, error) {
	b := protocol.NewBuffer()
	if err := protocol.WriteLoginSuccess(b, profile.UUID(), profile.Name()); err != nil {
		return nil, err
	}
	if err := c.Write(b.Bytes()); err != nil {
		return nil, err
	}
	c.inPlay.Store(true)
	c.lastPong.Store(time.Now().UnixNano())

	pp := world.NewProtoPlayer(c)
	pp.Hardcore = s.cfg.Hardcore
	return pp.CreatePlayer(profile, s.cfg.World, pos)
}

// prepareSpawn выбирает позицию входа и закрепляет её чанк.
// Сохранённая позиция с недоступным чанком заменяется точкой спавна.
func (s *Server) prepareSpawn(ctx context.Context, profile *world.Profile) (vec.Position, error) {
	pos := s.cfg.Spawn
	if s.cfg.Positions != nil {
		lctx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
		saved, ok, err := s.cfg.Positions.LoadPosition(lctx, profile.UUID())
		cancel()
		switch {
		case err != nil:
			s.log.Warn("Позиция %s не прочитана: %v", profile.Name(), err)
		case ok && saved.Coord.Validate() != nil:
			s.log.Warn("Сохранённая позиция %s за границей мира, вход на спавн", profile.Name())
		case ok:
			pos = saved
		}
	}

	w := s.cfg.World
	pctx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()
	center := vec.ChunkPosOf(pos.Coord)
	err := w.Preload(pctx, center, 0)
	if err == nil {
		return pos, nil
	}
	if pos == s.cfg.Spawn {
		return pos, err
	}

	s.log.Warn("Чанк %s для %s недоступен (%v), вход на спавн", center, profile.Name(), err)
	pos = s.cfg.Spawn
	center = vec.ChunkPosOf(pos.Coord)
	if err := w.Preload(pctx, center, 0); err != nil {
		return pos, err
	}
	return pos, nil
}

// play читает пакеты клиента до ошибки или закрытия
func (s *Server) play(c *Conn, player *world.Player) error {
	for {
		p, err := c.readPacket(s.cfg.Timeout)
		if err != nil {
			return err
		}

		switch protocol.PacketID(p.ID) {
		case protocol.ServerKeepAlive:
			id, err := protocol.ReadPing(p)
			if err != nil {
				return err
			}
			if err := c.ackKeepAlive(id, time.Now()); err != nil {
				return err
			}
		case protocol.ConfirmTeleportation, protocol.ClientInformation:
			// Дальность обзора клиента не учитывается
		default:
			next, onGround, ok, err := protocol.ApplyMovement(p, player.Position())
			if err != nil {
				return err
			}
			if !ok {
				s.log.Trace("%s: пакет 0x%02X пропущен", player.Name(), p.ID)
				continue
			}
			if err := player.SetPosition(next, onGround); err != nil {
				return err
			}
		}
	}
}

func errClientGoneOr(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return errClientGone
	}
	return err
}
