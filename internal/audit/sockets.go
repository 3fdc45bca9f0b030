package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// socket is one listening TCP socket from the host's socket table.
type socket struct {
	Addr    string // local address without the port
	Port    int
	Process string // owning process name, when the tool reports it
}

// Loopback reports whether the socket is bound to a loopback address only.
func (s socket) Loopback() bool {
	return strings.HasPrefix(s.Addr, "127.") || s.Addr == "::1" || s.Addr == "localhost"
}

func (s socket) String() string {
	label := fmt.Sprintf("%s:%d", s.Addr, s.Port)
	if s.Process != "" {
		label += " (" + s.Process + ")"
	}
	return label
}

// listeningSockets enumerates listening TCP sockets via ss, falling back to
// netstat on hosts without iproute2.
func (a *Auditor) listeningSockets(ctx context.Context) ([]socket, error) {
	if a.runner.Available("ss") {
		res := a.runner.RunArgs(ctx, "ss", "-H", "-tlnp")
		if res.Ok() {
			return parseSS(res.Stdout), nil
		}
		// Without root, ss still lists sockets but cannot name processes.
		res = a.runner.RunArgs(ctx, "ss", "-H", "-tln")
		if res.Ok() {
			return parseSS(res.Stdout), nil
		}
	}
	if a.runner.Available("netstat") {
		res := a.runner.RunArgs(ctx, "netstat", "-tlnp")
		if res.Ok() {
			return parseNetstat(res.Stdout), nil
		}
	}
	return nil, fmt.Errorf("neither ss nor netstat produced a socket table")
}

// parseSS parses `ss -tlnp` output. Columns: State Recv-Q Send-Q
// Local:Port Peer:Port [Process].
func parseSS(output string) []socket {
	var sockets []socket
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if fields[0] != "LISTEN" {
			continue
		}
		s, ok := parseLocalAddr(fields[3])
		if !ok {
			continue
		}
		if proc := extractProcess(line); proc != "" {
			s.Process = proc
		}
		sockets = append(sockets, s)
	}
	return sockets
}

// parseNetstat parses `netstat -tlnp` output. Columns: Proto Recv-Q Send-Q
// Local Foreign State PID/Program.
func parseNetstat(output string) []socket {
	var sockets []socket
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 || !strings.HasPrefix(fields[0], "tcp") {
			continue
		}
		if fields[5] != "LISTEN" {
			continue
		}
		s, ok := parseLocalAddr(fields[3])
		if !ok {
			continue
		}
		if len(fields) >= 7 {
			if idx := strings.Index(fields[6], "/"); idx >= 0 {
				s.Process = fields[6][idx+1:]
			}
		}
		sockets = append(sockets, s)
	}
	return sockets
}

// parseLocalAddr splits "0.0.0.0:22", "[::]:22" or "*:22" into address and
// port.
func parseLocalAddr(local string) (socket, bool) {
	idx := strings.LastIndex(local, ":")
	if idx < 0 {
		return socket{}, false
	}
	port, err := strconv.Atoi(local[idx+1:])
	if err != nil {
		return socket{}, false
	}
	addr := strings.Trim(local[:idx], "[]")
	if addr == "" || addr == "*" {
		addr = "0.0.0.0"
	}
	return socket{Addr: addr, Port: port}, true
}

// extractProcess pulls the first process name out of ss's
// users:(("sshd",pid=700,fd=3)) annotation.
func extractProcess(line string) string {
	idx := strings.Index(line, `users:(("`)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(`users:(("`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
