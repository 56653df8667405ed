package check_teamspeak3

import (
	"fmt"
	"math"

	"github.com/consol-monitoring/check_teamspeak3/pkg/convert"
	"github.com/consol-monitoring/check_teamspeak3/pkg/ts3query"
	"github.com/consol-monitoring/check_teamspeak3/pkg/utils"
	"github.com/mackerelio/checkers"
	"golang.org/x/exp/constraints"
)

// ThresholdSpec contains the warning and critical limit of a single metric, zero means not set.
type ThresholdSpec[T constraints.Integer | constraints.Float] struct {
	Warning  T `validate:"gte=0"`
	Critical T `validate:"gte=0"`
}

// Enabled returns true if at least one threshold is set.
func (s ThresholdSpec[T]) Enabled() bool {
	return s.Warning != 0 || s.Critical != 0
}

// Above returns the state of a value where higher values are worse.
func (s ThresholdSpec[T]) Above(value T) checkers.Status {
	switch {
	case s.Critical != 0 && value > s.Critical:
		return checkers.CRITICAL
	case s.Warning != 0 && value > s.Warning:
		return checkers.WARNING
	}

	return checkers.OK
}

// PerfWarning returns the warning threshold for the performance data.
func (s ThresholdSpec[T]) PerfWarning() string {
	return perfThreshold(s.Warning)
}

// PerfCritical returns the critical threshold for the performance data.
func (s ThresholdSpec[T]) PerfCritical() string {
	return perfThreshold(s.Critical)
}

func perfThreshold[T constraints.Integer | constraints.Float](val T) string {
	if val == 0 {
		return ""
	}

	return convert.Num2String(float64(val))
}

// Verdict is the outcome of a single threshold evaluation.
type Verdict struct {
	State   checkers.Status
	Message string
	Metrics []*CheckMetric
}

func newVerdict(state checkers.Status, format string, args ...interface{}) *Verdict {
	return &Verdict{State: state, Message: fmt.Sprintf(format, args...)}
}

// Evaluator applies the configured thresholds to response fields. It holds no state besides the configuration.
type Evaluator struct {
	cfg *Config
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(cfg *Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// ModeSupported verifies that all enabled checks can run in the configured mode.
func (e *Evaluator) ModeSupported() *Verdict {
	if e.cfg.VirtualPort != 0 {
		return nil
	}
	if e.cfg.PacketLoss.Enabled() {
		return newVerdict(checkers.UNKNOWN, "cannot check packetloss without port of virtual server set")
	}
	if e.cfg.Ping.Enabled() {
		return newVerdict(checkers.UNKNOWN, "cannot check ping without port of virtual server set")
	}

	return nil
}

// VirtualServerStatus fails unless the virtual server is online.
func (e *Evaluator) VirtualServerStatus(fields ts3query.Fields) *Verdict {
	status, _ := fields.Unescaped("virtualserver_status")
	if status == "online" {
		return &Verdict{State: checkers.OK}
	}

	state := checkers.CRITICAL
	if e.cfg.IgnoreVirtualStatus {
		state = checkers.UNKNOWN
	}

	return newVerdict(state, "virtualserver %d has status %s", e.cfg.VirtualPort, status)
}

// Uptime fails if the uptime in seconds from field key is below the minimal uptime.
func (e *Evaluator) Uptime(fields ts3query.Fields, key string) *Verdict {
	uptime, err := fields.Int64(key)
	if err != nil {
		log.Debugf("malformed uptime output: %s", err.Error())

		return newVerdict(checkers.CRITICAL, "malformed uptime output, unable to parse uptime")
	}

	return e.uptime(uptime)
}

func (e *Evaluator) uptime(uptime int64) *Verdict {
	verdict := &Verdict{State: checkers.OK}
	verdict.Metrics = append(verdict.Metrics, &CheckMetric{
		Name:  "uptime",
		Unit:  "s",
		Value: uptime,
		Min:   perfThreshold(e.cfg.MinimalUptime),
	})

	if e.cfg.MinimalUptime != 0 && uptime < e.cfg.MinimalUptime {
		verdict.State = checkers.CRITICAL
		verdict.Message = fmt.Sprintf("uptime is %d seconds (threshold min = %d)", uptime, e.cfg.MinimalUptime)
	}

	return verdict
}

// PacketLoss checks the average packet loss of all clients, rounded to two decimals.
func (e *Evaluator) PacketLoss(fields ts3query.Fields) *Verdict {
	raw, err := fields.Float64("virtualserver_total_packetloss_total")
	if err != nil {
		log.Debugf("malformed serverinfo packetloss output: %s", err.Error())

		return newVerdict(checkers.CRITICAL, "malformed serverinfo, unable to parse packetloss")
	}

	packetLoss := utils.Round(raw, 2)
	verdict := &Verdict{State: e.cfg.PacketLoss.Above(packetLoss)}
	verdict.Metrics = append(verdict.Metrics, &CheckMetric{
		Name:     "packetloss",
		Unit:     "%",
		Value:    packetLoss,
		Warning:  e.cfg.PacketLoss.PerfWarning(),
		Critical: e.cfg.PacketLoss.PerfCritical(),
	})
	if verdict.State != checkers.OK {
		verdict.Message = fmt.Sprintf("average client packetloss %s%%", convert.Num2String(packetLoss))
	}

	return verdict
}

// Ping checks the average ping of all clients, rounded to full milliseconds.
func (e *Evaluator) Ping(fields ts3query.Fields) *Verdict {
	raw, err := fields.Float64("virtualserver_total_ping")
	if err != nil {
		log.Debugf("malformed serverinfo ping output: %s", err.Error())

		return newVerdict(checkers.CRITICAL, "malformed clientinfo output, unable to parse ping")
	}

	ping := int64(utils.Round(raw, 0))
	verdict := &Verdict{State: e.cfg.Ping.Above(ping)}
	verdict.Metrics = append(verdict.Metrics, &CheckMetric{
		Name:     "ping",
		Unit:     "ms",
		Value:    ping,
		Warning:  e.cfg.Ping.PerfWarning(),
		Critical: e.cfg.Ping.PerfCritical(),
	})
	if verdict.State != checkers.OK {
		verdict.Message = fmt.Sprintf("average client ping %d ms", ping)
	}

	return verdict
}

// ClientCounts holds the client numbers of the instance or a virtual server.
type ClientCounts struct {
	Current  int64
	Max      int64
	Reserved int64
}

// ParseClientCounts extracts the client numbers, an empty reservedKey means no reserved slots.
func ParseClientCounts(fields ts3query.Fields, currentKey, maxKey, reservedKey string) (*ClientCounts, error) {
	counts := &ClientCounts{}

	var err error
	if counts.Max, err = fields.Int64(maxKey); err != nil {
		return nil, err
	}
	if counts.Current, err = fields.Int64(currentKey); err != nil {
		return nil, err
	}
	if reservedKey != "" {
		if counts.Reserved, err = fields.Int64(reservedKey); err != nil {
			return nil, err
		}
	}

	return counts, nil
}

// ClientPercentage checks the used share of the available slots.
// The percentage is rounded to one decimal, but its floor is compared against the thresholds.
func (e *Evaluator) ClientPercentage(counts *ClientCounts) *Verdict {
	verdict := &Verdict{State: checkers.OK}
	verdict.Metrics = append(verdict.Metrics,
		&CheckMetric{Name: "connectedclients", Value: counts.Current},
		&CheckMetric{Name: "reservedslots", Value: counts.Reserved},
		&CheckMetric{Name: "maxclients", Value: counts.Max},
	)

	usable := counts.Max - counts.Reserved
	if e.cfg.IgnoreReservedSlots {
		usable = counts.Max
	}

	if counts.Max == 0 {
		verdict.State = checkers.CRITICAL
		verdict.Message = "maximum allowed clients on server is zero"

		return verdict
	}
	if usable == 0 {
		verdict.State = checkers.CRITICAL
		verdict.Message = fmt.Sprintf("all server slots are reserved (%d/%d)", counts.Reserved, counts.Max)

		return verdict
	}

	percentage := utils.Percentage(counts.Current, usable, 1)
	verdict.Metrics = append(verdict.Metrics, &CheckMetric{
		Name:     "clientpercentage",
		Unit:     "%",
		Value:    percentage,
		Warning:  e.cfg.Clients.PerfWarning(),
		Critical: e.cfg.Clients.PerfCritical(),
	})

	verdict.State = e.cfg.Clients.Above(int64(math.Floor(percentage)))
	if verdict.State != checkers.OK {
		verdict.Message = fmt.Sprintf("number of clients reached %s%% - %d/%d", convert.Num2String(percentage), counts.Current, counts.Max)
		if counts.Reserved > 0 {
			verdict.Message += fmt.Sprintf(" (%d reserved)", counts.Reserved)
		}
	}

	return verdict
}
