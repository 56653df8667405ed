package ts3query

import (
	"fmt"
	"strings"
)

// Command is a single ServerQuery command line without the line ending.
type Command string

// Commands used by the health checks.
const (
	CmdHostInfo   Command = "hostinfo"
	CmdServerInfo Command = "serverinfo"
	CmdQuit       Command = "quit"
)

// Param is a single key=value command parameter.
type Param struct {
	Key   string
	Value string
}

// NewCommand builds a command from name and parameters, parameter values are escaped.
func NewCommand(name string, params ...Param) Command {
	cmd := strings.Builder{}
	cmd.WriteString(name)
	for _, p := range params {
		cmd.WriteString(" ")
		cmd.WriteString(p.Key)
		cmd.WriteString("=")
		cmd.WriteString(Escape(p.Value))
	}

	return Command(cmd.String())
}

// UseCommand selects a virtual server by its voice port.
func UseCommand(port int) Command {
	return NewCommand("use", Param{"port", fmt.Sprintf("%d", port)})
}

// LoginCommand authenticates the query client.
func LoginCommand(user, password string) Command {
	return NewCommand("login",
		Param{"client_login_name", user},
		Param{"client_login_password", password},
	)
}

// Validate returns an error if the command cannot be sent as one line.
func (c Command) Validate() error {
	if c == "" || strings.ContainsAny(string(c), "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, string(c))
	}

	return nil
}

// Name returns the first word of the command.
func (c Command) Name() string {
	name, _, _ := strings.Cut(string(c), " ")

	return name
}

// Masked returns the command with secret parameter values replaced, used for debug logging.
func (c Command) Masked() string {
	if c.Name() != "login" {
		return string(c)
	}

	tokens := strings.Split(string(c), " ")
	for i, token := range tokens {
		if strings.HasPrefix(token, "client_login_password=") {
			tokens[i] = "client_login_password=***"
		}
	}

	return strings.Join(tokens, " ")
}
