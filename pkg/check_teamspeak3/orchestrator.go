package check_teamspeak3

import (
	"context"
	"errors"
	"fmt"

	"github.com/consol-monitoring/check_teamspeak3/pkg/humanize"
	"github.com/consol-monitoring/check_teamspeak3/pkg/ts3query"
	"github.com/mackerelio/checkers"
)

// QueryClient is the subset of the ServerQuery client used by the checks.
type QueryClient interface {
	Connect(ctx context.Context, host string, port int) error
	Login(user, password string) (*ts3query.Response, error)
	SelectVirtualServer(port int) (*ts3query.Response, error)
	HostInfo() (*ts3query.Response, error)
	ServerInfo() (*ts3query.Response, error)
	Disconnect()
}

type runState int

const (
	stateDisconnected runState = iota
	stateConnected
	stateServerSelected
	stateEvaluated
	stateReported
)

func (s runState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnected:
		return "connected"
	case stateServerSelected:
		return "server selected"
	case stateEvaluated:
		return "evaluated"
	case stateReported:
		return "reported"
	}

	return fmt.Sprintf("runState(%d)", int(s))
}

// Orchestrator runs one check: it fetches the required responses, hands them to the
// evaluator and stops at the first verdict which is not OK.
type Orchestrator struct {
	cfg    *Config
	client QueryClient
	eval   *Evaluator
	state  runState
	result *CheckResult
}

// NewOrchestrator creates an orchestrator for a single run.
func NewOrchestrator(cfg *Config, client QueryClient) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		eval:   NewEvaluator(cfg),
		state:  stateDisconnected,
		result: &CheckResult{State: checkers.OK},
	}
}

// Run executes the check. The connection is always closed before it returns.
func (o *Orchestrator) Run(ctx context.Context) *CheckResult {
	defer o.client.Disconnect()

	if o.state != stateDisconnected {
		return o.result
	}

	if verdict := o.eval.ModeSupported(); verdict != nil {
		return o.report(verdict)
	}

	if err := o.client.Connect(ctx, o.cfg.Host, o.cfg.Port); err != nil {
		return o.report(connectVerdict(o.cfg, err))
	}
	o.advance(stateConnected)

	if o.cfg.Username != "" {
		if verdict := o.login(); verdict != nil {
			return o.report(verdict)
		}
	}

	if o.cfg.VirtualPort == 0 {
		return o.report(o.checkGlobal())
	}

	return o.report(o.checkVirtualServer())
}

func connectVerdict(cfg *Config, err error) *Verdict {
	var connErr *ts3query.ConnectError
	if errors.As(err, &connErr) && connErr.Kind == ts3query.UnexpectedGreeting {
		return newVerdict(checkers.CRITICAL, "unexpected response from server")
	}
	log.Debugf("connect failed: %s", err.Error())

	return newVerdict(checkers.CRITICAL, "could not connect to teamspeak: %s", cfg.Address())
}

// queryErrorState returns CRITICAL for transport failures, a command that
// could not be sent at all leaves the server state UNKNOWN.
func queryErrorState(err error) checkers.Status {
	var connErr *ts3query.ConnectError
	if errors.As(err, &connErr) {
		return checkers.CRITICAL
	}

	return checkers.UNKNOWN
}

func (o *Orchestrator) login() *Verdict {
	res, err := o.client.Login(o.cfg.Username, o.cfg.Password)
	switch {
	case err != nil:
		return newVerdict(queryErrorState(err), "login failed for user %s: %s", o.cfg.Username, err.Error())
	case !res.Succeeded:
		log.Debugf("login failed: %s", res.Raw)

		return newVerdict(checkers.UNKNOWN, "login failed for user %s: %s", o.cfg.Username, res.ErrorString())
	}

	return nil
}

// checkGlobal runs the instance wide checks based on hostinfo.
func (o *Orchestrator) checkGlobal() *Verdict {
	res, err := o.client.HostInfo()
	if err != nil {
		return newVerdict(checkers.CRITICAL, "error while fetching global host info - %s", err.Error())
	}
	if !res.Succeeded {
		return newVerdict(checkers.CRITICAL, "error while fetching global host info - %s", res.ErrorString())
	}

	hostInfo := res.Fields
	uptime, err := hostInfo.Int64("instance_uptime")
	if err != nil {
		log.Debugf("malformed uptime output: \n%s", res.Raw)

		return newVerdict(checkers.CRITICAL, "malformed instance output, unable to parse uptime")
	}
	status := fmt.Sprintf("teamspeak3 is running for %s", humanize.Duration(uptime))

	if o.cfg.MinimalUptime != 0 {
		if verdict := o.apply(o.eval.Uptime(hostInfo, "instance_uptime")); verdict != nil {
			return verdict
		}
	}

	if o.cfg.Clients.Enabled() {
		counts, err := ParseClientCounts(hostInfo, "virtualservers_total_clients_online", "virtualservers_total_maxclients", "")
		if err != nil {
			log.Debugf("malformed clientinfo output: %s\n%s", err.Error(), res.Raw)

			return newVerdict(checkers.CRITICAL, "malformed clientinfo output, unable to parse client amount")
		}
		status = fmt.Sprintf("ts3 has %d/%d clients online and is running for %s", counts.Current, counts.Max, humanize.Duration(uptime))
		if verdict := o.apply(o.eval.ClientPercentage(counts)); verdict != nil {
			return verdict
		}
	}

	o.advance(stateEvaluated)

	return newVerdict(checkers.OK, "%s", status)
}

// checkVirtualServer selects the virtual server and runs the checks based on serverinfo.
func (o *Orchestrator) checkVirtualServer() *Verdict {
	port := o.cfg.VirtualPort

	res, err := o.client.SelectVirtualServer(port)
	if err != nil {
		return newVerdict(queryErrorState(err), "unable to select virtualserver with port %d: %s", port, err.Error())
	}
	if !res.Succeeded {
		log.Debugf("not able to select virtualserver by port %d: %s", port, res.Raw)

		return newVerdict(checkers.UNKNOWN, "unable to select virtualserver with port %d: {%s}", port, res.RawTrimmed())
	}
	o.advance(stateServerSelected)

	res, err = o.client.ServerInfo()
	if err != nil {
		return newVerdict(queryErrorState(err), "error while fetching server info for virtualserver with port %d: %s", port, err.Error())
	}
	if !res.Succeeded {
		log.Debugf("error while fetching server info for virtualserver with port %d: %s", port, res.Raw)

		return newVerdict(checkers.UNKNOWN, "error while fetching server info for virtualserver with port %d: {%s}", port, res.RawTrimmed())
	}

	serverInfo := res.Fields
	if verdict := o.apply(o.eval.VirtualServerStatus(serverInfo)); verdict != nil {
		return verdict
	}

	name, ok := serverInfo.Unescaped("virtualserver_name")
	if !ok {
		log.Debugf("malformed server output: \n%s", res.Raw)

		return newVerdict(checkers.CRITICAL, "malformed instance output, unable to parse virtualservername")
	}
	uptime, err := serverInfo.Int64("virtualserver_uptime")
	if err != nil {
		log.Debugf("malformed uptime output: \n%s", res.Raw)

		return newVerdict(checkers.CRITICAL, "malformed instance output, unable to parse uptime")
	}
	status := fmt.Sprintf("%s has been running for %s", name, humanize.Duration(uptime))

	if o.cfg.PacketLoss.Enabled() {
		if verdict := o.apply(o.eval.PacketLoss(serverInfo)); verdict != nil {
			return verdict
		}
	}

	if o.cfg.Ping.Enabled() {
		if verdict := o.apply(o.eval.Ping(serverInfo)); verdict != nil {
			return verdict
		}
	}

	if o.cfg.MinimalUptime != 0 {
		if verdict := o.apply(o.eval.Uptime(serverInfo, "virtualserver_uptime")); verdict != nil {
			return verdict
		}
	}

	if o.cfg.Clients.Enabled() {
		counts, err := ParseClientCounts(serverInfo, "virtualserver_clientsonline", "virtualserver_maxclients", "virtualserver_reserved_slots")
		if err != nil {
			log.Debugf("malformed clientinfo output: %s\n%s", err.Error(), res.Raw)

			return newVerdict(checkers.CRITICAL, "malformed clientinfo output, unable to parse client amount")
		}
		status = fmt.Sprintf("%s has %d/%d clients online and is running for %s", name, counts.Current, counts.Max, humanize.Duration(uptime))
		if verdict := o.apply(o.eval.ClientPercentage(counts)); verdict != nil {
			return verdict
		}
	}

	o.advance(stateEvaluated)

	return newVerdict(checkers.OK, "%s", status)
}

// apply records the metrics of a verdict and returns it if the run has to stop.
func (o *Orchestrator) apply(verdict *Verdict) *Verdict {
	o.result.Metrics = append(o.result.Metrics, verdict.Metrics...)
	if verdict.State != checkers.OK {
		return verdict
	}

	return nil
}

func (o *Orchestrator) advance(next runState) {
	if next <= o.state {
		log.Errorf("invalid state transition: %s -> %s", o.state, next)

		return
	}
	log.Debugf("state: %s -> %s", o.state, next)
	o.state = next
}

// report finalizes the result with the given verdict and closes the connection.
func (o *Orchestrator) report(verdict *Verdict) *CheckResult {
	o.advance(stateReported)
	o.client.Disconnect()

	o.result.EscalateStatus(verdict.State)
	o.result.Output = verdict.Message

	return o.result
}
