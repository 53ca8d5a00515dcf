package link

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"gps-svr/internal/pipeline"
)

var ErrNotConnected = errors.New("link: not connected")

// Client mantiene una conexión TCP al proxy y le envía eventos NDJSON.
// Si la conexión se cae, reconecta en segundo plano.
type Client struct {
	addr   string
	logger *slog.Logger

	// RetryDelay es la espera tras un dial fallido; ReconnectDelay tras un cierre.
	RetryDelay     time.Duration
	ReconnectDelay time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func New(addr string, logger *slog.Logger) *Client {
	return &Client{
		addr:           addr,
		logger:         logger.With("component", "link"),
		RetryDelay:     5 * time.Second,
		ReconnectDelay: 2 * time.Second,
	}
}

func (c *Client) Name() string { return "link" }

// Start lanza el loop de conexión; termina cuando ctx se cancela.
func (c *Client) Start(ctx context.Context) {
	go c.connectLoop(ctx)
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
	}()
}

// Connected indica si hay una conexión viva al proxy.
func (c *Client) Connected() bool {
	return c.getConn() != nil
}

// -------------------------------------------------------------------
//                        LOOP DE CONEXIÓN
// -------------------------------------------------------------------

func (c *Client) connectLoop(ctx context.Context) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("dial failed", "addr", c.addr, "err", err)
			if !sleep(ctx, c.RetryDelay) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.logger.Info("connected", "remote", conn.RemoteAddr().String())

		// leer en este goroutine hasta que se caiga
		c.readLoop(conn)

		c.clearConn(conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection closed, reconnecting")
		if !sleep(ctx, c.ReconnectDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) clearConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) getConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// -------------------------------------------------------------------
//                           LECTURA
// -------------------------------------------------------------------

// Por ahora sólo se loguea lo que llega del proxy.
func (c *Client) readLoop(conn net.Conn) {
	r := bufio.NewScanner(conn)
	for r.Scan() {
		c.logger.Info("incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("read error", "err", err)
	}
}

// -------------------------------------------------------------------
//                          ENVÍO NDJSON
// -------------------------------------------------------------------

func (c *Client) sendNDJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err = c.conn.Write(append(b, '\n'))
	return err
}

type deviceConnectPayload struct {
	DeviceConnect bool   `json:"device_connect"`
	DeviceID      uint16 `json:"device_id"`
	RemoteIP      string `json:"remote_ip,omitempty"`
	RemotePort    int    `json:"remote_port,omitempty"`
}

type deviceUpdatePayload struct {
	DeviceUpdate bool   `json:"device_update"`
	DeviceID     uint16 `json:"device_id"`
	RemoteIP     string `json:"remote_ip,omitempty"`
	RemotePort   int    `json:"remote_port,omitempty"`
}

// SendDevice envía device_connect o device_update según info.Event.
func (c *Client) SendDevice(info DeviceInfo) error {
	var pl any
	switch info.Event {
	case DeviceEventUpdate:
		pl = deviceUpdatePayload{DeviceUpdate: true, DeviceID: info.DeviceID, RemoteIP: info.RemoteIP, RemotePort: info.RemotePort}
	default:
		pl = deviceConnectPayload{DeviceConnect: true, DeviceID: info.DeviceID, RemoteIP: info.RemoteIP, RemotePort: info.RemotePort}
	}
	return c.sendNDJSON(pl)
}

// DeviceConnected y DeviceUpdated implementan pipeline.DeviceObserver.
func (c *Client) DeviceConnected(_ context.Context, deviceID uint16, remote string) {
	c.sendDeviceEvent(deviceID, remote, DeviceEventConnect)
}

func (c *Client) DeviceUpdated(_ context.Context, deviceID uint16, remote string) {
	c.sendDeviceEvent(deviceID, remote, DeviceEventUpdate)
}

func (c *Client) sendDeviceEvent(deviceID uint16, remote string, ev DeviceEvent) {
	info := DeviceInfo{DeviceID: deviceID, Event: ev}
	if host, port, err := net.SplitHostPort(remote); err == nil {
		info.RemoteIP = host
		info.RemotePort, _ = strconv.Atoi(port)
	}
	if err := c.SendDevice(info); err != nil {
		c.logger.Warn("send device event failed", "device", deviceID, "event", ev.String(), "err", err)
	}
}

// Publish envía el registro como NDJSON (formato TrackingObject).
func (c *Client) Publish(_ context.Context, tr *pipeline.TrackingObject) error {
	if tr == nil {
		return nil
	}
	return c.sendNDJSON(tr)
}
