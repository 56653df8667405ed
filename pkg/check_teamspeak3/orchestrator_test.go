package check_teamspeak3

import (
	"context"
	"errors"
	"testing"

	"github.com/consol-monitoring/check_teamspeak3/pkg/ts3query"
	"github.com/mackerelio/checkers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHostInfo   = "instance_uptime=3661 host_timestamp_utc=1700000000 virtualservers_running_total=1 virtualservers_total_maxclients=100 virtualservers_total_clients_online=50"
	testServerInfo = "virtualserver_name=My\\sServer virtualserver_status=online virtualserver_uptime=90061" +
		" virtualserver_maxclients=50 virtualserver_clientsonline=40 virtualserver_reserved_slots=10" +
		" virtualserver_total_packetloss_total=0.0123 virtualserver_total_ping=24.6641" +
		" virtualserver_welcomemessage=Welcome\\sto\\s[B]My\\sServer[/B]"
)

func okResponse(data string) *ts3query.Response {
	return ts3query.Decode(data + ts3query.Terminator + ts3query.SuccessMarker + ts3query.Terminator)
}

// fakeClient replays canned responses and records the calls.
type fakeClient struct {
	connectErr  error
	useErr      error
	infoErr     error
	loginRes    *ts3query.Response
	useRes      *ts3query.Response
	hostInfo    *ts3query.Response
	serverInfo  *ts3query.Response
	calls       []string
	connected   bool
	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		loginRes:   okResponse(""),
		useRes:     okResponse(""),
		hostInfo:   okResponse(testHostInfo),
		serverInfo: okResponse(testServerInfo),
	}
}

func (f *fakeClient) Connect(_ context.Context, _ string, _ int) error {
	f.calls = append(f.calls, "connect")
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true

	return nil
}

func (f *fakeClient) Login(_, _ string) (*ts3query.Response, error) {
	f.calls = append(f.calls, "login")

	return f.loginRes, nil
}

func (f *fakeClient) SelectVirtualServer(_ int) (*ts3query.Response, error) {
	f.calls = append(f.calls, "use")
	if f.useErr != nil {
		return nil, f.useErr
	}

	return f.useRes, nil
}

func (f *fakeClient) HostInfo() (*ts3query.Response, error) {
	f.calls = append(f.calls, "hostinfo")

	return f.hostInfo, nil
}

func (f *fakeClient) ServerInfo() (*ts3query.Response, error) {
	f.calls = append(f.calls, "serverinfo")
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.serverInfo == nil {
		return nil, ts3query.ErrNotConnected
	}

	return f.serverInfo, nil
}

func (f *fakeClient) Disconnect() {
	if f.connected {
		f.disconnects++
	}
	f.connected = false
}

func testConfig() *Config {
	return &Config{Host: "localhost", Port: 10011}
}

func TestRunGlobal(t *testing.T) {
	cfg := testConfig()
	client := newFakeClient()

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.OK, result.State)
	assert.Equal(t, "teamspeak3 is running for 1 hour", result.Output)
	assert.Empty(t, result.Metrics)
	assert.Equal(t, []string{"connect", "hostinfo"}, client.calls)
	assert.Equalf(t, 1, client.disconnects, "connection closed once")
	assert.False(t, client.connected)
}

func TestRunGlobalClients(t *testing.T) {
	cfg := testConfig()
	cfg.Clients = ThresholdSpec[int64]{Warning: 80, Critical: 90}
	cfg.MinimalUptime = 60

	result := Run(context.Background(), cfg, newFakeClient())
	assert.Equal(t, checkers.OK, result.State)
	assert.Equal(t, "ts3 has 50/100 clients online and is running for 1 hour", result.Output)
	assert.Equal(t,
		"OK: ts3 has 50/100 clients online and is running for 1 hour|uptime=3661s;;;60 connectedclients=50 reservedslots=0 maxclients=100 clientpercentage=50%;80;90",
		string(result.BuildPluginOutput()))
}

func TestRunGlobalUptimeTooLow(t *testing.T) {
	cfg := testConfig()
	cfg.MinimalUptime = 7200
	cfg.Clients = ThresholdSpec[int64]{Warning: 10}

	result := Run(context.Background(), cfg, newFakeClient())
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Equal(t, "uptime is 3661 seconds (threshold min = 7200)", result.Output)
	assert.Lenf(t, result.Metrics, 1, "client check skipped after first failure")
}

func TestRunGlobalHostInfoFailed(t *testing.T) {
	client := newFakeClient()
	client.hostInfo = ts3query.Decode("error id=2568 msg=insufficient\\sclient\\spermissions failed_permid=4\n\r")

	result := Run(context.Background(), testConfig(), client)
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Contains(t, result.Output, "error while fetching global host info - id=2568")
}

func TestRunGlobalMalformed(t *testing.T) {
	client := newFakeClient()
	client.hostInfo = okResponse("instance_uptime=abc")

	result := Run(context.Background(), testConfig(), client)
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Equal(t, "malformed instance output, unable to parse uptime", result.Output)

	cfg := testConfig()
	cfg.Clients = ThresholdSpec[int64]{Critical: 90}
	client = newFakeClient()
	client.hostInfo = okResponse("instance_uptime=10 virtualservers_total_maxclients=100")

	result = Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Equal(t, "malformed clientinfo output, unable to parse client amount", result.Output)
}

func TestRunVirtualServer(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 9987
	cfg.PacketLoss = ThresholdSpec[float64]{Warning: 1, Critical: 5}
	cfg.Ping = ThresholdSpec[int64]{Warning: 50, Critical: 100}
	cfg.MinimalUptime = 60
	cfg.Clients = ThresholdSpec[int64]{Warning: 80, Critical: 90}
	cfg.IgnoreReservedSlots = true
	client := newFakeClient()

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.OK, result.State)
	assert.Equal(t, "My Server has 40/50 clients online and is running for 1 day", result.Output)
	assert.Equal(t, []string{"connect", "use", "serverinfo"}, client.calls)
	assert.Equal(t,
		"OK: My Server has 40/50 clients online and is running for 1 day|packetloss=0.01%;1;5 ping=25ms;50;100 uptime=90061s;;;60"+
			" connectedclients=40 reservedslots=10 maxclients=50 clientpercentage=80%;80;90",
		string(result.BuildPluginOutput()))
}

func TestRunVirtualServerPing(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 9987
	cfg.Ping = ThresholdSpec[int64]{Warning: 20}

	result := Run(context.Background(), cfg, newFakeClient())
	assert.Equal(t, checkers.WARNING, result.State)
	assert.Equal(t, "WARNING: average client ping 25 ms|ping=25ms;20", string(result.BuildPluginOutput()))
}

func TestRunVirtualServerOffline(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 9987
	cfg.MinimalUptime = 60
	client := newFakeClient()
	client.serverInfo = okResponse("virtualserver_name=My\\sServer virtualserver_status=offline virtualserver_uptime=0")

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, "CRITICAL: virtualserver 9987 has status offline", string(result.BuildPluginOutput()))

	cfg.IgnoreVirtualStatus = true
	result = Run(context.Background(), cfg, client)
	assert.Equal(t, "UNKNOWN: virtualserver 9987 has status offline", string(result.BuildPluginOutput()))
}

func TestRunVirtualServerSelectFailed(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 1234
	client := newFakeClient()
	client.useRes = ts3query.Decode("error id=1033 msg=server\\sis\\snot\\srunning\n\r")

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.UNKNOWN, result.State)
	assert.Equal(t, "unable to select virtualserver with port 1234: {error id=1033 msg=server\\sis\\snot\\srunning}", result.Output)
	assert.Equal(t, []string{"connect", "use"}, client.calls)
	assert.Equal(t, 1, client.disconnects)
}

func TestRunVirtualServerInfoError(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 9987
	client := newFakeClient()
	client.serverInfo = nil

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.UNKNOWN, result.State)
	assert.Contains(t, result.Output, "error while fetching server info for virtualserver with port 9987")
}

func TestRunVirtualServerResponseTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.VirtualPort = 9987
	tooLarge := &ts3query.ConnectError{Kind: ts3query.ResponseTooLarge, Address: "localhost:10011", Detail: "more than 4.1 kB without terminator"}

	client := newFakeClient()
	client.useErr = tooLarge
	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Contains(t, result.Output, "unable to select virtualserver with port 9987: ")

	client = newFakeClient()
	client.infoErr = tooLarge
	result = Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.CRITICAL, result.State)
	assert.Contains(t, result.Output, "error while fetching server info for virtualserver with port 9987: ")
	assert.Equal(t, 1, client.disconnects)
}

func TestRunModeUnsupported(t *testing.T) {
	cfg := testConfig()
	cfg.PacketLoss = ThresholdSpec[float64]{Warning: 1}
	client := newFakeClient()

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, "UNKNOWN: cannot check packetloss without port of virtual server set", string(result.BuildPluginOutput()))
	assert.Emptyf(t, client.calls, "no connection attempt")
}

func TestRunConnectFailed(t *testing.T) {
	client := newFakeClient()
	client.connectErr = &ts3query.ConnectError{Kind: ts3query.Unreachable, Address: "localhost:10011", Err: errors.New("connection refused")}

	result := Run(context.Background(), testConfig(), client)
	assert.Equal(t, "CRITICAL: could not connect to teamspeak: localhost:10011", string(result.BuildPluginOutput()))

	client = newFakeClient()
	client.connectErr = &ts3query.ConnectError{Kind: ts3query.UnexpectedGreeting, Address: "localhost:10011", Detail: "SSH-2.0"}

	result = Run(context.Background(), testConfig(), client)
	assert.Equal(t, "CRITICAL: unexpected response from server", string(result.BuildPluginOutput()))
}

func TestRunLogin(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "serveradmin"
	cfg.Password = "secret"
	client := newFakeClient()

	result := Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.OK, result.State)
	assert.Equal(t, []string{"connect", "login", "hostinfo"}, client.calls)

	client = newFakeClient()
	client.loginRes = ts3query.Decode("error id=520 msg=invalid\\sloginname\\sor\\spassword\n\r")

	result = Run(context.Background(), cfg, client)
	assert.Equal(t, checkers.UNKNOWN, result.State)
	assert.Equal(t, "login failed for user serveradmin: id=520 msg=invalid loginname or password", result.Output)
	assert.Equal(t, []string{"connect", "login"}, client.calls)
	assert.Equal(t, 1, client.disconnects)
}

func TestOrchestratorRunsOnce(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(testConfig(), client)

	first := orch.Run(context.Background())
	require.Equal(t, checkers.OK, first.State)
	assert.Equal(t, stateReported, orch.state)

	second := orch.Run(context.Background())
	assert.Same(t, first, second)
	assert.Equalf(t, []string{"connect", "hostinfo"}, client.calls, "no second connection")
}
