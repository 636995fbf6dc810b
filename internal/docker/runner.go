package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/sfmbench/internal/stage"
)

type RunOpts struct {
	Image       string
	Command     []string
	Env         []string
	Timeout     time.Duration
	Mounts      []Mount
	CPULimit    float64
	MemoryLimit int64
	UserID      string
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Output   []byte
}

// RunContainer runs one command to completion in a fresh container and
// returns its exit status and output. The container is removed afterwards.
// It runs with a TTY so stdout and stderr arrive as a single stream.
func RunContainer(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	var mounts []mount.Mount
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    opts.Env,
		Tty:    true,
		Labels: map[string]string{"sfmbench": "true"},
	}
	if opts.UserID != "" {
		containerCfg.User = opts.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			if ctx.Err() != nil {
				return nil, fmt.Errorf("waiting for container: %w", ctx.Err())
			}
			if waitCtx.Err() == nil {
				return nil, fmt.Errorf("waiting for container: %w", err)
			}
			return &RunResult{
				ExitCode: stage.TimeoutExitCode,
				TimedOut: true,
				Duration: time.Since(start),
				Output:   containerLogs(cli, containerID),
			}, nil
		case status := <-waitResult.Result:
			return &RunResult{
				ExitCode: int(status.StatusCode),
				Duration: time.Since(start),
				Output:   containerLogs(cli, containerID),
			}, nil
		}
	}
}

func containerLogs(cli *client.Client, containerID string) []byte {
	logReader, _ := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if logReader == nil {
		return nil
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return data
}

// Runner executes stages in containers of one image. Each mount is bound
// at its host path so the resolved stage arguments stay valid inside.
type Runner struct {
	Image       string
	Mounts      []Mount
	Env         []string
	CPULimit    float64
	MemoryLimit int64
	UserID      string
	// Stdout receives inherited output, and captured output when Tee is
	// set. Nil means os.Stdout.
	Stdout io.Writer
	Tee    bool
}

func (r *Runner) Run(ctx context.Context, inv *stage.Invocation) (*stage.Outcome, error) {
	res, err := RunContainer(ctx, &RunOpts{
		Image:       r.Image,
		Command:     inv.Argv(),
		Env:         append(append([]string(nil), r.Env...), inv.Env...),
		Timeout:     inv.Timeout,
		Mounts:      r.Mounts,
		CPULimit:    r.CPULimit,
		MemoryLimit: r.MemoryLimit,
		UserID:      r.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inv.Stage, err)
	}

	// The TTY turns line endings into CRLF; the report parser accepts both.
	out := &stage.Outcome{ExitCode: res.ExitCode, TimedOut: res.TimedOut, Elapsed: res.Duration}
	switch inv.Stream {
	case stage.Inherit:
		r.stdout().Write(res.Output)
	case stage.Capture:
		out.Stdout = bytes.ReplaceAll(res.Output, []byte("\r\n"), []byte("\n"))
		if r.Tee {
			r.stdout().Write(res.Output)
		}
	}
	return out, nil
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}
