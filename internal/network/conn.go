package network

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/GauntletMC/Graphite/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Conn TCP-соединение клиента. Реализует world.Connection:
// запись потокобезопасна, Close идемпотентен.
type Conn struct {
	id     uint64
	sock   net.Conn
	r      *bufio.Reader
	server *Server

	writeMu sync.Mutex
	closed  atomic.Bool
	inPlay  atomic.Bool
	name    atomic.Value // string

	lastPong     atomic.Int64 // unix nano
	keepAliveID  atomic.Int64 // 0 - ответ не ожидается
	keepAliveBuf *protocol.Buffer
}

func newConn(id uint64, sock net.Conn, s *Server) *Conn {
	c := &Conn{
		id:           id,
		sock:         sock,
		r:            bufio.NewReader(sock),
		server:       s,
		keepAliveBuf: protocol.NewBuffer(),
	}
	c.name.Store("")
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// Name имя игрока после Login Start
func (c *Conn) Name() string { return c.name.Load().(string) }

// RemoteAddr адрес клиента
func (c *Conn) RemoteAddr() net.Addr { return c.sock.RemoteAddr() }

// Write отправляет готовые кадры одной записью
func (c *Conn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return net.ErrClosed
	}
	return c.writeLocked(p, writeTimeout)
}

func (c *Conn) writeLocked(p []byte, timeout time.Duration) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := c.sock.Write(p)
	if err == nil {
		c.server.m.bytesOut.Add(float64(len(p)))
	}
	return err
}

// Close отключает клиента. В фазе Play клиент получает пакет Disconnect с причиной.
func (c *Conn) Close(reason error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	text := "Disconnected"
	if reason != nil {
		text = reason.Error()
	}

	c.writeMu.Lock()
	b := protocol.NewBuffer()
	var err error
	if c.inPlay.Load() {
		err = protocol.WriteDisconnect(b, text)
	} else {
		err = protocol.WriteLoginDisconnect(b, text)
	}
	if err == nil && !errors.Is(reason, errClientGone) {
		_ = c.writeLocked(b.Bytes(), time.Second)
	}
	c.writeMu.Unlock()

	c.sock.Close()
	c.server.log.Debug("Соединение %d (%s) закрыто: %s", c.id, c.Name(), text)
}

func (c *Conn) isClosed() bool { return c.closed.Load() }

// readPacket читает кадр без сжатия
func (c *Conn) readPacket(timeout time.Duration) (pk.Packet, error) {
	var p pk.Packet
	if err := c.sock.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return p, err
	}
	if err := p.UnPack(c.r, -1); err != nil {
		return p, err
	}
	c.server.m.packetsIn.Inc()
	return p, nil
}

// sendKeepAlive пишет Keep Alive, если предыдущий уже подтверждён
func (c *Conn) sendKeepAlive(now time.Time) error {
	id := now.UnixMilli()
	if !c.keepAliveID.CompareAndSwap(0, id) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.keepAliveBuf.Reset()
	if err := protocol.WriteKeepAlive(c.keepAliveBuf, id); err != nil {
		return err
	}
	return c.writeLocked(c.keepAliveBuf.Bytes(), writeTimeout)
}

// ackKeepAlive принимает ответ клиента
func (c *Conn) ackKeepAlive(id int64, now time.Time) error {
	if !c.keepAliveID.CompareAndSwap(id, 0) || id == 0 {
		return errBadKeepAlive
	}
	c.lastPong.Store(now.UnixNano())
	return nil
}
