package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

type DockerConfig struct {
	Image         string
	WorkDir       string
	PreviewPort   int
	ProbeInterval time.Duration
}

// Docker provisions one container per execution environment. The file
// tree is copied in as a tar stream, the shell is a tty exec, and the
// preview server is detected by probing the published preview port.
type Docker struct {
	cli *client.Client
	cfg DockerConfig
	log *zap.Logger
}

func NewDocker(cfg DockerConfig, log *zap.Logger) (*Docker, error) {
	if cfg.Image == "" {
		cfg.Image = "node:20-alpine"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "/app"
	}
	if cfg.PreviewPort == 0 {
		cfg.PreviewPort = 3000
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = time.Second
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Docker{cli: cli, cfg: cfg, log: log}, nil
}

func (d *Docker) Boot(ctx context.Context) (Env, error) {
	// Best effort: the image may already be present locally.
	if rc, err := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{}); err == nil {
		_, _ = io.Copy(io.Discard, rc)
		_ = rc.Close()
	} else {
		d.log.Warn("image pull failed, using local image", zap.String("image", d.cfg.Image), zap.Error(err))
	}

	previewPort := nat.Port(fmt.Sprintf("%d/tcp", d.cfg.PreviewPort))
	created, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        d.cfg.Image,
			Cmd:          []string{"tail", "-f", "/dev/null"},
			WorkingDir:   d.cfg.WorkDir,
			ExposedPorts: nat.PortSet{previewPort: struct{}{}},
			Labels:       map[string]string{"oslab.managed": "true"},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				previewPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
			},
		},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		d.remove(created.ID)
		return nil, fmt.Errorf("start container: %w", err)
	}

	info, err := d.cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		d.remove(created.ID)
		return nil, fmt.Errorf("inspect container: %w", err)
	}
	var hostPort string
	if bindings := info.NetworkSettings.Ports[previewPort]; len(bindings) > 0 {
		hostPort = bindings[0].HostPort
	}
	if hostPort == "" {
		d.remove(created.ID)
		return nil, fmt.Errorf("no host binding for preview port %s", previewPort)
	}

	lifecycle, cancel := context.WithCancel(context.Background())
	env := &dockerEnv{
		cli:      d.cli,
		id:       created.ID,
		workDir:  d.cfg.WorkDir,
		port:     d.cfg.PreviewPort,
		hostPort: hostPort,
		interval: d.cfg.ProbeInterval,
		events:   make(chan ServerEvent, 8),
		cancel:   cancel,
		log:      d.log.With(zap.String("container_id", created.ID[:12])),
	}
	env.wg.Add(1)
	go env.probe(lifecycle)
	return env, nil
}

func (d *Docker) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

type dockerEnv struct {
	cli      *client.Client
	id       string
	workDir  string
	port     int
	hostPort string
	interval time.Duration
	events   chan ServerEvent
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	torn     sync.Once
	log      *zap.Logger
}

func (e *dockerEnv) Mount(ctx context.Context, tree core.FileTree) error {
	buf, err := tarTree(e.workDir, tree)
	if err != nil {
		return err
	}
	if err := e.cli.CopyToContainer(ctx, e.id, "/", buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("mount tree: %w", err)
	}
	return nil
}

func (e *dockerEnv) WriteFile(ctx context.Context, p string, content []byte) error {
	buf, err := tarTree(e.workDir, core.FileTree{p: string(content)})
	if err != nil {
		return err
	}
	if err := e.cli.CopyToContainer(ctx, e.id, "/", buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func (e *dockerEnv) ReadFile(ctx context.Context, p string) ([]byte, error) {
	rc, _, err := e.cli.CopyFromContainer(ctx, e.id, path.Join(e.workDir, p))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer rc.Close()
	tr := tar.NewReader(rc)
	if _, err := tr.Next(); err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return io.ReadAll(tr)
}

func (e *dockerEnv) SpawnShell(ctx context.Context, cols, rows uint16) (Shell, error) {
	execResp, err := e.cli.ContainerExecCreate(ctx, e.id, container.ExecOptions{
		Cmd:          []string{"/bin/sh"},
		WorkingDir:   e.workDir,
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create shell exec: %w", err)
	}
	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{
		Tty:         true,
		ConsoleSize: &[2]uint{uint(rows), uint(cols)},
	})
	if err != nil {
		return nil, fmt.Errorf("attach shell: %w", err)
	}
	return &dockerShell{cli: e.cli, execID: execResp.ID, conn: attach.Conn, reader: attach.Reader}, nil
}

func (e *dockerEnv) Start(ctx context.Context, argv []string) (Proc, error) {
	execResp, err := e.cli.ContainerExecCreate(ctx, e.id, container.ExecOptions{
		Cmd:          argv,
		WorkingDir:   e.workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}
	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		// Demultiplex the non-tty stream; stdout and stderr interleave.
		_, err := stdcopy.StdCopy(pw, pw, attach.Reader)
		_ = pw.CloseWithError(err)
	}()
	return &dockerProc{cli: e.cli, execID: execResp.ID, out: pr}, nil
}

func (e *dockerEnv) ServerEvents() <-chan ServerEvent {
	return e.events
}

func (e *dockerEnv) Teardown(ctx context.Context) error {
	var err error
	e.torn.Do(func() {
		e.cancel()
		e.wg.Wait()
		close(e.events)
		err = e.cli.ContainerRemove(ctx, e.id, container.RemoveOptions{Force: true})
	})
	return err
}

// probe dials the published preview port and reports listen/close edges.
func (e *dockerEnv) probe(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	addr := net.JoinHostPort("127.0.0.1", e.hostPort)
	up := false
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			misses = 0
			if !up {
				up = true
				e.log.Debug("preview port listening", zap.Int("port", e.port))
				e.send(ctx, ServerEvent{Port: e.port, URL: "http://" + addr, Up: true})
			}
			continue
		}
		if up {
			misses++
			if misses >= 3 {
				up = false
				misses = 0
				e.log.Debug("preview port gone", zap.Int("port", e.port))
				e.send(ctx, ServerEvent{Port: e.port, Up: false})
			}
		}
	}
}

func (e *dockerEnv) send(ctx context.Context, ev ServerEvent) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

type dockerShell struct {
	cli    *client.Client
	execID string
	conn   net.Conn
	reader *bufio.Reader
}

func (s *dockerShell) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *dockerShell) Close() error                { return s.conn.Close() }
func (s *dockerShell) Output() io.Reader           { return s.reader }

func (s *dockerShell) Resize(cols, rows uint16) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.cli.ContainerExecResize(ctx, s.execID, container.ResizeOptions{
		Height: uint(rows),
		Width:  uint(cols),
	})
}

type dockerProc struct {
	cli    *client.Client
	execID string
	out    *io.PipeReader
}

func (p *dockerProc) Output() io.Reader { return p.out }

func (p *dockerProc) Wait(ctx context.Context) (int, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
		inspect, err := p.cli.ContainerExecInspect(ctx, p.execID)
		if err != nil {
			return 0, fmt.Errorf("inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
	}
}

// tarTree assembles the tree into a tar stream rooted so that extraction
// at / lands every file under workDir. Docker's extractor creates
// missing parent directories.
func tarTree(workDir string, tree core.FileTree) (*bytes.Buffer, error) {
	prefix := strings.TrimPrefix(workDir, "/")
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	now := time.Now()
	for p, content := range tree {
		name := path.Join(prefix, path.Clean("/"+p))
		hdr := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("tar %s: %w", p, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("tar %s: %w", p, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return buf, nil
}
