package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/log"
)

func startEchoServer(t *testing.T, logger log.Logger) (*Server, chan string) {
	t.Helper()

	disconnected := make(chan string, 4)
	srv, err := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Logger:  logger,
		OnMessage: func(c *Conn, msg []byte) {
			c.Send(msg)
		},
		OnDisconnect: func(c *Conn) {
			disconnected <- c.SessionID()
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv, disconnected
}

func TestServerEchoesFrames(t *testing.T) {
	logger := &capturingLogger{}
	srv, disconnected := startEchoServer(t, logger)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	f := NewFramer(nc)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, f.WriteFrame([]byte(msg)))
		got, err := f.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, msg, string(got))
	}
	require.Equal(t, 1, srv.ConnectionCount())

	nc.Close()
	select {
	case id := <-disconnected:
		require.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}

	var states []string
	for _, e := range logger.Events() {
		if e.StateChange != nil {
			states = append(states, e.StateChange.NewState)
		}
	}
	require.Equal(t, []string{"CONNECTED", "DISCONNECTED"}, states)
}

func TestServerConcurrentConnections(t *testing.T) {
	srv, _ := startEchoServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nc, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				t.Error(err)
				return
			}
			defer nc.Close()
			f := NewFramer(nc)
			if err := f.WriteFrame([]byte("ping")); err != nil {
				t.Error(err)
				return
			}
			if got, err := f.ReadFrame(); err != nil || string(got) != "ping" {
				t.Errorf("echo: %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestServerStopClosesConnections(t *testing.T) {
	srv, disconnected := startEchoServer(t, nil)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	f := NewFramer(nc)
	require.NoError(t, f.WriteFrame([]byte("x")))
	_, err = f.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, srv.Stop())
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed by Stop")
	}
	require.Equal(t, 0, srv.ConnectionCount())
}

func TestNewServerRequiresOnMessage(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}
