// Package executor runs commands on remote Cassandra nodes over ssh. It
// mirrors a small, stable core: connect lazily, validate environment
// variable names before shipping them across, and manually splice
// environment into the remote script rather than relying on server-side
// AcceptEnv (most sshd configs disable it).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cstarhq/cstar/pkg/cstarerr"
)

// ExecutionResult is the outcome of running a command on a host.
type ExecutionResult struct {
	Command string
	Status  int
	Stdout  string
	Stderr  string
}

// Succeeded reports whether the command exited zero.
func (r ExecutionResult) Succeeded() bool { return r.Status == 0 }

// Executor runs commands against a single remote host.
type Executor interface {
	// Run executes argv as a single shell command and waits for it to
	// complete.
	Run(ctx context.Context, argv []string) (ExecutionResult, error)
	// RunJob runs command under a per-job working directory, with env
	// applied, and waits for it to finish or for timeout to expire.
	RunJob(ctx context.Context, command []string, jobID string, timeout time.Duration, env map[string]string) (ExecutionResult, error)
	Close() error
}

// Config configures how cstar connects to a host.
type Config struct {
	Username     string
	Password     string
	IdentityFile string
}

var envNameRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SSHExecutor is the ssh-backed Executor implementation.
type SSHExecutor struct {
	hostname string
	cfg      Config
	client   *ssh.Client
}

// New returns an Executor for hostname. The connection is established
// lazily on first use.
func New(hostname string, cfg Config) (*SSHExecutor, error) {
	if hostname == "" {
		return nil, &cstarerr.NoHostsSpecifiedError{}
	}
	return &SSHExecutor{hostname: hostname, cfg: cfg}, nil
}

func (e *SSHExecutor) connect() error {
	if e.client != nil {
		// Verify the existing connection is still alive with a cheap probe.
		sess, err := e.client.NewSession()
		if err == nil {
			sess.Close()
			return nil
		}
		e.client = nil
	}

	authMethods, err := e.authMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            e.cfg.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(e.hostname, "22"), config)
	if err != nil {
		return &cstarerr.BadSSHHostError{Host: e.hostname, Err: err}
	}
	e.client = client
	return nil
}

func (e *SSHExecutor) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if e.cfg.IdentityFile != "" {
		key, err := os.ReadFile(e.cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh identity file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if e.cfg.Password != "" {
		methods = append(methods, ssh.Password(e.cfg.Password))
	}
	return methods, nil
}

// Escape quote-wraps a shell token unless it's already alphanumeric.
func Escape(input string) string {
	if envNameRe.MatchString(input) {
		return "'" + strings.ReplaceAll(input, "'", `'\''`) + "'"
	}
	return input
}

func validateEnv(env map[string]string) error {
	for key := range env {
		if envNameRe.MatchString(key) {
			return &cstarerr.BadEnvironmentVariableError{Name: key}
		}
	}
	return nil
}

func envPrefix(env map[string]string) string {
	var b strings.Builder
	for key, value := range env {
		fmt.Fprintf(&b, "export %s=%s\n", key, Escape(value))
	}
	return b.String()
}

// Run executes argv as a single remote command.
func (e *SSHExecutor) Run(ctx context.Context, argv []string) (ExecutionResult, error) {
	if err := e.connect(); err != nil {
		return ExecutionResult{}, err
	}

	session, err := e.client.NewSession()
	if err != nil {
		e.client = nil
		return ExecutionResult{}, &cstarerr.BadSSHHostError{Host: e.hostname, Err: err}
	}
	defer session.Close()

	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = Escape(a)
	}
	cmd := strings.Join(parts, " ")

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return ExecutionResult{}, ctx.Err()
	case err := <-done:
		status := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				status = exitErr.ExitStatus()
			} else {
				return ExecutionResult{}, &cstarerr.BadSSHHostError{Host: e.hostname, Err: err}
			}
		}
		return ExecutionResult{Command: cmd, Status: status, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}
}

// RunJob runs command under a per-job working directory on the remote
// host, with env applied. It is functionally equivalent to Run with an
// environment prefix and a dedicated scratch directory, which keeps
// concurrent jobs on the same host from colliding.
//
// A single-element command is spliced into the generated script verbatim,
// the way upstream uploads a command definition and executes it as a
// script: it's trusted shell source, not a value to be quoted as one
// literal argument. A multi-element command is treated as an argv and
// each element is escaped, for ad-hoc one-off commands that aren't
// backed by a command definition file.
//
// The remote script writes its exit status to a status file in the job
// directory before exiting. When a RunJob for the same jobID and host is
// reissued after that (a reconnecting supervisor resuming a job), the
// script finds that status file already present, and echoes back the
// result it already captured instead of relaunching command. A reissue
// that arrives while no status file exists yet (an earlier run still in
// progress, or one killed before it finished) runs command again.
func (e *SSHExecutor) RunJob(ctx context.Context, command []string, jobID string, timeout time.Duration, env map[string]string) (ExecutionResult, error) {
	if err := validateEnv(env); err != nil {
		return ExecutionResult{}, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body string
	if len(command) == 1 {
		body = command[0]
	} else {
		body = strings.Join(quoteAll(command), " ")
	}

	dir := ".cstar/remote-jobs/" + jobID
	script := jobScript(dir, env, body)

	return e.Run(ctx, []string{"sh", "-c", script})
}

// jobScript builds the remote wrapper script RunJob executes: it guards the
// actual command behind a check for a status file already present in dir,
// so a reissued RunJob for the same job directory replays the captured
// output instead of running body again.
func jobScript(dir string, env map[string]string, body string) string {
	return fmt.Sprintf(`mkdir -p %s && cd %s
if [ -f status ]; then
	cat out
	cat err >&2
	exit "$(cat status)"
fi
%s(
%s
) >out 2>err
echo "$?" >status
cat out
cat err >&2
exit "$(cat status)"
`, Escape(dir), Escape(dir), envPrefix(env), body)
}

func quoteAll(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = Escape(a)
	}
	return out
}

// Close tears down the underlying connection, if any.
func (e *SSHExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
