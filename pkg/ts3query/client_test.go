package ts3query

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/consol-monitoring/check_teamspeak3/pkg/ts3query/querytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	client := NewClient(timeout)
	client.SettleDelay = time.Millisecond

	return client
}

func connected(client *Client) bool {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	return client.conn != nil
}

func TestClientRoundtrip(t *testing.T) {
	srv := querytest.NewServer(t, map[string]string{
		"hostinfo":       querytest.Reply("instance_uptime=3661 virtualservers_total_maxclients=100 virtualservers_total_clients_online=50"),
		"use port=9987":  querytest.OK,
		"serverinfo":     querytest.Reply(testServerInfo),
		"login client_login_name=serveradmin client_login_password=s3cr\\/t": querytest.OK,
	})

	client := newTestClient(2 * time.Second)
	err := client.Connect(context.Background(), srv.Host(), srv.Port())
	require.NoErrorf(t, err, "connected")
	assert.True(t, connected(client))

	res, err := client.Login("serveradmin", "s3cr/t")
	require.NoError(t, err)
	assert.Truef(t, res.Succeeded, "login ok")

	res, err = client.HostInfo()
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	assert.Equal(t, "3661", res.Fields["instance_uptime"])
	assert.Equal(t, "50", res.Fields["virtualservers_total_clients_online"])

	res, err = client.SelectVirtualServer(9987)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)

	res, err = client.ServerInfo()
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	name, _ := res.Fields.Unescaped("virtualserver_name")
	assert.Equal(t, "My Server", name)

	client.Disconnect()
	assert.False(t, connected(client))

	// second call is a no-op
	client.Disconnect()

	assert.Eventually(t, func() bool {
		cmds := srv.Commands()

		return len(cmds) == 5 && cmds[4] == "quit"
	}, time.Second, 10*time.Millisecond, "quit sent once")
}

func TestClientErrorResponse(t *testing.T) {
	srv := querytest.NewServer(t, map[string]string{
		"use port=1234": querytest.ErrorReply(1024, "invalid\\sserverID"),
	})

	client := newTestClient(2 * time.Second)
	require.NoError(t, client.Connect(context.Background(), srv.Host(), srv.Port()))
	defer client.Disconnect()

	res, err := client.SelectVirtualServer(1234)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Empty(t, res.Fields)
	assert.Equal(t, int64(1024), res.ErrorID)
	assert.Equal(t, "invalid serverID", res.ErrorMessage)
}

func TestClientUnreachable(t *testing.T) {
	// grab a free port and close it again, nothing will be listening there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	client := newTestClient(time.Second)
	err = client.Connect(context.Background(), "127.0.0.1", port)
	require.Error(t, err)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, Unreachable, connErr.Kind)
	assert.False(t, connected(client))

	client.Disconnect()
}

func TestClientUnexpectedGreeting(t *testing.T) {
	srv := querytest.NewServer(t, nil)
	srv.SetGreeting("SSH-2.0-OpenSSH_9.6\n\r")

	client := newTestClient(time.Second)
	err := client.Connect(context.Background(), srv.Host(), srv.Port())
	require.Error(t, err)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, UnexpectedGreeting, connErr.Kind)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", connErr.Detail)
	assert.False(t, connected(client))
}

func TestClientGreetingInSeparateWrites(t *testing.T) {
	// greeting lines arriving in separate segments must not leak into the first reply
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "TS3\n\r")
		time.Sleep(2 * time.Millisecond)
		io.WriteString(conn, "Welcome to the TeamSpeak 3 ServerQuery interface\n\r")
		buf := make([]byte, 64)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		io.WriteString(conn, querytest.Reply("instance_uptime=5"))
		conn.Read(buf)
	}()

	client := newTestClient(time.Second)
	client.DrainTimeout = 100 * time.Millisecond
	require.NoError(t, client.Connect(context.Background(), "127.0.0.1", listener.Addr().(*net.TCPAddr).Port))

	res, err := client.HostInfo()
	require.NoError(t, err)
	require.Truef(t, res.Succeeded, "reply: %q", res.Raw)
	assert.Equal(t, "5", res.Fields["instance_uptime"])
	assert.NotContains(t, res.Raw, "Welcome")
}

func TestClientResetAfterCompleteResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		io.WriteString(conn, querytest.Greeting)
		buf := make([]byte, 64)
		if _, err := conn.Read(buf); err != nil {
			conn.Close()

			return
		}
		io.WriteString(conn, querytest.Reply("instance_uptime=5"))
		time.Sleep(200 * time.Millisecond)
		// linger 0 makes close send a RST instead of a FIN
		conn.(*net.TCPConn).SetLinger(0)
		conn.Close()
	}()

	client := newTestClient(5 * time.Second)
	require.NoError(t, client.Connect(context.Background(), "127.0.0.1", listener.Addr().(*net.TCPAddr).Port))
	// keep draining until the reset arrives
	client.DrainTimeout = 2 * time.Second

	res, err := client.HostInfo()
	require.NoErrorf(t, err, "complete response survives the reset")
	require.Truef(t, res.Succeeded, "reply: %q", res.Raw)
	assert.Equal(t, "5", res.Fields["instance_uptime"])

	client.Disconnect()
	assert.False(t, connected(client))
}

func TestClientResponseInChunks(t *testing.T) {
	srv := querytest.NewServer(t, nil)
	srv.SetHandler(func(conn net.Conn, cmd string) bool {
		if cmd != "serverinfo" {
			return false
		}
		reply := querytest.Reply(testServerInfo)
		for len(reply) > 0 {
			size := 7
			if size > len(reply) {
				size = len(reply)
			}
			io.WriteString(conn, reply[:size])
			reply = reply[size:]
			time.Sleep(time.Millisecond)
		}

		return true
	})

	client := newTestClient(2 * time.Second)
	require.NoError(t, client.Connect(context.Background(), srv.Host(), srv.Port()))
	defer client.Disconnect()

	res, err := client.ServerInfo()
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	assert.Len(t, res.Fields, 10)
}

func TestClientTimeoutReturnsPartialResponse(t *testing.T) {
	srv := querytest.NewServer(t, nil)
	srv.SetHandler(func(conn net.Conn, cmd string) bool {
		if cmd != "serverinfo" {
			return false
		}
		// never send the terminator
		io.WriteString(conn, "virtualserver_status=online virtualserver_uptime=90")

		return true
	})

	client := newTestClient(200 * time.Millisecond)
	require.NoError(t, client.Connect(context.Background(), srv.Host(), srv.Port()))
	defer client.Disconnect()

	started := time.Now()
	res, err := client.ServerInfo()
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second, "bounded by timeout")
	assert.False(t, res.Succeeded)
	assert.Equal(t, "virtualserver_status=online virtualserver_uptime=90", res.Raw)
}

func TestClientResponseTooLarge(t *testing.T) {
	srv := querytest.NewServer(t, nil)
	srv.SetHandler(func(conn net.Conn, cmd string) bool {
		if cmd != "hostinfo" {
			return false
		}
		io.WriteString(conn, strings.Repeat("x", 8192))

		return true
	})

	client := newTestClient(2 * time.Second)
	client.MaxResponseSize = 4096
	require.NoError(t, client.Connect(context.Background(), srv.Host(), srv.Port()))
	defer client.Disconnect()

	_, err := client.HostInfo()
	require.Error(t, err)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, ResponseTooLarge, connErr.Kind)
}

func TestClientNotConnected(t *testing.T) {
	client := newTestClient(time.Second)

	_, err := client.HostInfo()
	assert.Truef(t, errors.Is(err, ErrNotConnected), "not connected")

	_, err = client.SendCommand("hostinfo\nquit")
	assert.Truef(t, errors.Is(err, ErrInvalidCommand), "invalid command rejected before sending")
}
