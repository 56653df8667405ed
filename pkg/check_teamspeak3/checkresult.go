package check_teamspeak3

import (
	"fmt"
	"strings"

	"github.com/consol-monitoring/check_teamspeak3/pkg/convert"
	"github.com/mackerelio/checkers"
)

// CheckResult is the result of a single check run.
type CheckResult struct {
	State   checkers.Status
	Output  string
	Metrics []*CheckMetric
}

// StateString returns the plugin state prefix.
func (cr *CheckResult) StateString() string {
	return cr.State.String()
}

// EscalateStatus raises the state, it never lowers it.
func (cr *CheckResult) EscalateStatus(state checkers.Status) {
	if state > cr.State {
		cr.State = state
	}
}

// BuildPluginOutput returns the status line including performance data.
// UNKNOWN results never carry performance data.
func (cr *CheckResult) BuildPluginOutput() []byte {
	output := []byte(fmt.Sprintf("%s: %s", cr.StateString(), cr.Output))
	if len(cr.Metrics) > 0 && cr.State != checkers.UNKNOWN {
		perf := make([]string, 0, len(cr.Metrics))
		for _, m := range cr.Metrics {
			perf = append(perf, m.String())
		}
		output = append(output, '|')
		output = append(output, []byte(strings.Join(perf, " "))...)
	}

	return output
}

// CheckMetric contains a single performance value.
type CheckMetric struct {
	Name     string
	Unit     string
	Value    interface{}
	Warning  string // empty if not set
	Critical string // empty if not set
	Min      string // empty if not set
}

func (m *CheckMetric) String() string {
	name := m.Name
	if strings.ContainsAny(name, " ='") {
		name = fmt.Sprintf("'%s'", strings.ReplaceAll(name, "'", "''"))
	}

	res := fmt.Sprintf("%s=%s%s;%s;%s;%s", name, convert.Num2String(m.Value), m.Unit, m.Warning, m.Critical, m.Min)

	// strip trailing semicolons
	return strings.TrimRight(res, ";")
}
