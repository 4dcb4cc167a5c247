// Package sandboxtest provides an in-memory sandbox.Driver for exercising
// the execution state machine, admission queue, and executors without a
// real Docker daemon.
package sandboxtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itstheanurag/executioner/internal/demux"
	"github.com/itstheanurag/executioner/internal/sandbox"
)

// Program describes the canned behavior of one fake container run, keyed
// by image name so a test can register different scripted outcomes for
// different ephemeral/prebuilt images.
type Program struct {
	Stdout      string
	Stderr      string
	ExitCode    int
	Delay       time.Duration // simulated run time before Wait returns
	BuildFails  bool
	StartFails  bool
	EchoStdin   bool // if true, anything written to the stream is echoed to stdout
	HangForever bool // if true, Wait never returns until ctx is cancelled/Stop is called
}

// Driver is a scripted, in-memory sandbox.Driver.
type Driver struct {
	mu sync.Mutex

	// Programs maps image name -> behavior. A missing entry uses Default.
	Programs map[string]Program
	Default  Program

	containers map[string]*fakeContainer
	images     map[string]bool
	seq        int

	// BuiltImages and RemovedImages/RemovedContainers record calls for
	// assertions about cleanup completeness (spec.md §8 property 2).
	BuiltImages       []string
	RemovedImages     []string
	RemovedContainers []string
}

type fakeContainer struct {
	id      string
	program Program
	stream  *fakeStream
	done    chan sandbox.ExitResult
	stopped bool
}

// NewDriver returns an empty fake driver ready to register programs on.
func NewDriver() *Driver {
	return &Driver{
		Programs:   map[string]Program{},
		containers: map[string]*fakeContainer{},
		images:     map[string]bool{},
	}
}

func (d *Driver) programFor(image string) Program {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.Programs[image]; ok {
		return p
	}
	return d.Default
}

func (d *Driver) EnsureImage(ctx context.Context, image string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images[image] = true
	return nil
}

func (d *Driver) BuildEphemeralImage(ctx context.Context, req sandbox.BuildRequest) (string, error) {
	p := d.programFor(req.BaseImage)
	if p.BuildFails {
		return "", fmt.Errorf("%w: scripted failure", sandbox.ErrBuildFailed)
	}
	d.mu.Lock()
	d.seq++
	name := fmt.Sprintf("fake-ephemeral-%d", d.seq)
	d.images[name] = true
	d.Programs[name] = p
	d.BuiltImages = append(d.BuiltImages, name)
	d.mu.Unlock()
	return name, nil
}

func (d *Driver) RemoveImage(ctx context.Context, imageName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, imageName)
	d.RemovedImages = append(d.RemovedImages, imageName)
	return nil
}

func (d *Driver) CreateContainer(ctx context.Context, opts sandbox.CreateOptions) (string, error) {
	p := d.programFor(opts.Image)
	if p.StartFails {
		return "", fmt.Errorf("%w: scripted failure", sandbox.ErrStartFailed)
	}

	d.mu.Lock()
	d.seq++
	id := fmt.Sprintf("fake-container-%d", d.seq)
	d.mu.Unlock()

	fc := &fakeContainer{
		id:      id,
		program: p,
		done:    make(chan sandbox.ExitResult, 1),
	}

	d.mu.Lock()
	d.containers[id] = fc
	d.mu.Unlock()

	return id, nil
}

func (d *Driver) Attach(ctx context.Context, containerID string) (sandbox.Stream, error) {
	d.mu.Lock()
	fc, ok := d.containers[containerID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown container", sandbox.ErrStartFailed)
	}

	stream := newFakeStream(fc.program)
	fc.stream = stream
	return stream, nil
}

func (d *Driver) Start(ctx context.Context, containerID string) error {
	d.mu.Lock()
	fc, ok := d.containers[containerID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown container", sandbox.ErrStartFailed)
	}

	go func() {
		if fc.program.Delay > 0 {
			time.Sleep(fc.program.Delay)
		}
		if fc.stream != nil {
			fc.stream.produceOutput()
		}
		if fc.program.HangForever {
			<-make(chan struct{})
		}
		if fc.stream != nil {
			// A container's exit ends its attached output stream.
			fc.stream.Close()
		}
		fc.done <- sandbox.ExitResult{Code: fc.program.ExitCode}
	}()
	return nil
}

func (d *Driver) Wait(ctx context.Context, containerID string) (sandbox.ExitResult, error) {
	d.mu.Lock()
	fc, ok := d.containers[containerID]
	d.mu.Unlock()
	if !ok {
		return sandbox.ExitResult{}, fmt.Errorf("unknown container")
	}
	select {
	case res := <-fc.done:
		return res, nil
	case <-ctx.Done():
		return sandbox.ExitResult{}, ctx.Err()
	}
}

func (d *Driver) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	d.mu.Lock()
	fc, ok := d.containers[containerID]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	fc.stopped = true
	select {
	case fc.done <- sandbox.ExitResult{Code: 137}:
	default:
	}
	if fc.stream != nil {
		fc.stream.Close()
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, containerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.containers, containerID)
	d.RemovedContainers = append(d.RemovedContainers, containerID)
	return nil
}

func (d *Driver) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	d.mu.Lock()
	fc, ok := d.containers[containerID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown container")
	}

	var buf bytes.Buffer
	if fc.program.Stdout != "" {
		_ = demux.Encode(&buf, demux.StreamStdout, []byte(fc.program.Stdout))
	}
	if fc.program.Stderr != "" {
		_ = demux.Encode(&buf, demux.StreamStderr, []byte(fc.program.Stderr))
	}
	return io.NopCloser(&buf), nil
}

// fakeStream is an in-memory, framed, bidirectional stream standing in for
// a hijacked container connection.
type fakeStream struct {
	mu       sync.Mutex
	program  Program
	readBuf  bytes.Buffer // framed bytes available to Read
	written  bytes.Buffer // raw bytes written by the caller (stdin)
	closed   bool
	closedWr bool
	notify   chan struct{}
}

func newFakeStream(p Program) *fakeStream {
	return &fakeStream{program: p, notify: make(chan struct{}, 1)}
}

func (s *fakeStream) produceOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program.Stdout != "" {
		_ = demux.Encode(&s.readBuf, demux.StreamStdout, []byte(s.program.Stdout))
	}
	if s.program.Stderr != "" {
		_ = demux.Encode(&s.readBuf, demux.StreamStderr, []byte(s.program.Stderr))
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// WriteStdinEcho lets a test script an interactive exchange: each call
// appends a stdout frame consisting of the given text, simulating a program
// that echoes what it read.
func (s *fakeStream) WriteStdinEcho(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = demux.Encode(&s.readBuf, demux.StreamStdout, []byte(text))
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.readBuf.Len() > 0 {
			n, err := s.readBuf.Read(p)
			s.mu.Unlock()
			return n, err
		}
		if s.closed {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.mu.Unlock()
		<-s.notify
	}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program.EchoStdin {
		_ = demux.Encode(&s.readBuf, demux.StreamStdout, p)
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return s.written.Write(p)
}

func (s *fakeStream) CloseWrite() error {
	s.mu.Lock()
	s.closedWr = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}
