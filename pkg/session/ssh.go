/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/carverauto/netrun/pkg/models"
)

const (
	defaultSSHPort     = "22"
	defaultDialTimeout = 15 * time.Second
	defaultReadTimeout = 30 * time.Second

	// DefaultPromptDelimiter is the trailing character that marks a
	// privileged device prompt on most supported platforms.
	DefaultPromptDelimiter = "#"

	// userPromptDelimiter ends a non-privileged EXEC prompt. Logins may land
	// there; EscalatePrivilege raises the session from it.
	userPromptDelimiter = ">"
)

var (
	errUnsupportedDeviceType = errors.New("unsupported device type")
	errSessionClosed         = errors.New("session closed by remote side")
	errPromptTimeout         = errors.New("prompt not seen before deadline")
	errEnableFailed          = errors.New("privilege escalation failed")
)

// SSHDialer opens interactive SSH shell sessions to network devices.
type SSHDialer struct {
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	PromptDelimiter string

	// Transcript, when set, provides a per-host sink for raw session I/O.
	Transcript func(host string) (io.WriteCloser, error)
}

// Dial implements Dialer. Authentication failures are returned as *AuthError,
// unresponsive hosts as *TimeoutError.
func (d *SSHDialer) Dial(ctx context.Context, record models.DeviceRecord) (Session, error) {
	platform, ok := PlatformForDeviceType(record.DeviceType())
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnsupportedDeviceType, record.DeviceType())
	}

	host := record.Host()

	addr := host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		port := defaultSSHPort
		if p, ok := record.Field("port"); ok && p != "" {
			port = p
		}

		addr = net.JoinHostPort(host, port)
	}

	dialTimeout := d.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	clientCfg := &ssh.ClientConfig{
		User: record.Username(),
		Auth: []ssh.AuthMethod{
			ssh.Password(record.Password()),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = record.Password()
				}

				return answers, nil
			}),
		},
		// Device fleets rarely have stable host keys worth pinning here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // see above
		Timeout:         dialTimeout,
	}

	netDialer := &net.Dialer{Timeout: dialTimeout}

	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, &TimeoutError{Host: host, Op: "connect", Err: err}
		}

		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()

		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &AuthError{Host: host, Err: err}
		}

		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	s, err := d.openShell(ctx, client, record, platform)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

func (d *SSHDialer) openShell(
	ctx context.Context,
	client *ssh.Client,
	record models.DeviceRecord,
	platform Platform,
) (*sshSession, error) {
	shell, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening shell channel: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}

	if err := shell.RequestPty("vt100", 0, 512, modes); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("requesting pty: %w", err)
	}

	stdin, err := shell.StdinPipe()
	if err != nil {
		_ = shell.Close()
		return nil, err
	}

	stdout, err := shell.StdoutPipe()
	if err != nil {
		_ = shell.Close()
		return nil, err
	}

	if err := shell.Shell(); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("starting shell: %w", err)
	}

	readTimeout := d.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}

	delimiter := d.PromptDelimiter
	if delimiter == "" {
		delimiter = DefaultPromptDelimiter
	}

	s := &sshSession{
		host:        record.Host(),
		secret:      record.Secret(),
		platform:    platform,
		client:      client,
		shell:       shell,
		stdin:       stdin,
		delimiter:   delimiter,
		readTimeout: readTimeout,
	}

	if d.Transcript != nil {
		w, terr := d.Transcript(record.Host())
		if terr == nil {
			s.transcript = w
		}
	}

	s.startReader(stdout)

	// Drain the login banner up to the first prompt.
	if _, err := s.readUntilPrompt(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	if platform.PagingOff != "" {
		// Paging left on garbles every later read, so this one is fatal.
		if _, err := s.exec(ctx, platform.PagingOff); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	return s, nil
}

type sshSession struct {
	host        string
	secret      string
	platform    Platform
	client      *ssh.Client
	shell       *ssh.Session
	stdin       io.WriteCloser
	chunks      chan []byte
	prompt      string
	delimiter   string
	readTimeout time.Duration
	transcript  io.WriteCloser
}

func (s *sshSession) startReader(r io.Reader) {
	s.chunks = make(chan []byte, 16)

	go func() {
		defer close(s.chunks)

		buf := make([]byte, 4096)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.chunks <- chunk
			}

			if err != nil {
				return
			}
		}
	}()
}

// readUntil accumulates output until done reports a hit, the read timeout
// expires, or the channel closes.
func (s *sshSession) readUntil(ctx context.Context, done func([]byte) bool) (string, error) {
	var out bytes.Buffer

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return out.String(), ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				return out.String(), fmt.Errorf("%w: %s", errSessionClosed, s.host)
			}

			out.Write(chunk)

			if s.transcript != nil {
				_, _ = s.transcript.Write(chunk)
			}

			if done(out.Bytes()) {
				return out.String(), nil
			}
		case <-timer.C:
			return out.String(), &TimeoutError{Host: s.host, Op: "await prompt", Err: errPromptTimeout}
		}
	}
}

func (s *sshSession) readUntilPrompt(ctx context.Context) (string, error) {
	return s.readUntil(ctx, func(buf []byte) bool {
		prompt, ok := lastPromptLine(buf, s.promptDelimiters()...)
		if ok {
			s.prompt = prompt
		}

		return ok
	})
}

// promptDelimiters lists the line endings accepted as a settled prompt: the
// privileged delimiter plus the user-EXEC one, so a non-privileged login
// still settles and can be escalated afterwards.
func (s *sshSession) promptDelimiters() []string {
	if s.delimiter == userPromptDelimiter {
		return []string{s.delimiter}
	}

	return []string{s.delimiter, userPromptDelimiter}
}

// lastPromptLine reports whether the buffer currently ends in a prompt line
// and returns that line. A prompt line is the last non-blank line, ending with
// one of the delimiters.
func lastPromptLine(buf []byte, delimiters ...string) (string, bool) {
	trimmed := strings.TrimRight(string(buf), " \r\n\t")
	if trimmed == "" {
		return "", false
	}

	idx := strings.LastIndexByte(trimmed, '\n')
	line := strings.TrimSpace(trimmed[idx+1:])

	if line == "" {
		return "", false
	}

	for _, delimiter := range delimiters {
		if strings.HasSuffix(line, delimiter) {
			return line, true
		}
	}

	return "", false
}

// exec writes one line and collects output up to the next prompt, with the
// command echo and the prompt line stripped.
func (s *sshSession) exec(ctx context.Context, command string) (string, error) {
	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("writing command to %s: %w", s.host, err)
	}

	raw, err := s.readUntilPrompt(ctx)
	if err != nil {
		return raw, err
	}

	return s.cleanOutput(raw, command), nil
}

// cleanOutput strips the echoed command from the head of the response and the
// prompt line from its tail.
func (s *sshSession) cleanOutput(raw, command string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	if len(lines) > 0 && strings.Contains(lines[0], strings.TrimSpace(command)) {
		lines = lines[1:]
	}

	if len(lines) > 0 {
		tail := strings.TrimSpace(lines[len(lines)-1])

		for _, delimiter := range s.promptDelimiters() {
			if strings.HasSuffix(tail, delimiter) {
				lines = lines[:len(lines)-1]
				break
			}
		}
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

func (s *sshSession) RunReadCommand(ctx context.Context, command string) (string, error) {
	return s.exec(ctx, command)
}

func (s *sshSession) RunConfigBatch(ctx context.Context, lines []string) (string, error) {
	var out strings.Builder

	if s.platform.ConfigEnter != "" {
		resp, err := s.exec(ctx, s.platform.ConfigEnter)
		out.WriteString(resp)

		if err != nil {
			return out.String(), err
		}
	}

	for _, line := range lines {
		resp, err := s.exec(ctx, line)
		out.WriteString(resp)

		if err != nil {
			return out.String(), err
		}
	}

	if s.platform.ConfigExit != "" {
		resp, err := s.exec(ctx, s.platform.ConfigExit)
		out.WriteString(resp)

		if err != nil {
			return out.String(), err
		}
	}

	return out.String(), nil
}

func (s *sshSession) EscalatePrivilege(ctx context.Context) error {
	if s.platform.EnableCommand == "" {
		return nil
	}

	// Already at a privileged prompt.
	if strings.HasSuffix(s.prompt, s.delimiter) {
		return nil
	}

	if _, err := io.WriteString(s.stdin, s.platform.EnableCommand+"\n"); err != nil {
		return fmt.Errorf("%w on %s: %w", errEnableFailed, s.host, err)
	}

	sawPassword := false

	_, err := s.readUntil(ctx, func(buf []byte) bool {
		if prompt, ok := lastPromptLine(buf, s.delimiter); ok {
			s.prompt = prompt
			return true
		}

		if !sawPassword && bytes.Contains(buf, []byte("assword")) {
			sawPassword = true

			_, _ = io.WriteString(s.stdin, s.secret+"\n")
		}

		return false
	})
	if err != nil {
		return fmt.Errorf("%w on %s: %w", errEnableFailed, s.host, err)
	}

	if !strings.HasSuffix(s.prompt, s.delimiter) {
		return fmt.Errorf("%w on %s: still at %q", errEnableFailed, s.host, s.prompt)
	}

	return nil
}

func (s *sshSession) SaveConfiguration(ctx context.Context) error {
	if s.platform.SaveCommand == "" {
		return nil
	}

	_, err := s.exec(ctx, s.platform.SaveCommand)

	return err
}

func (s *sshSession) CurrentPrompt() string {
	return s.prompt
}

func (s *sshSession) Close() error {
	var firstErr error

	if s.stdin != nil {
		if err := s.stdin.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		s.stdin = nil
	}

	if s.shell != nil {
		if err := s.shell.Close(); err != nil && firstErr == nil && !errors.Is(err, io.EOF) {
			firstErr = err
		}

		s.shell = nil
	}

	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		s.client = nil
	}

	if s.transcript != nil {
		_ = s.transcript.Close()
		s.transcript = nil
	}

	return firstErr
}
