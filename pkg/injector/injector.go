package injector

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/logger"
	"wcferry/pkg/protocol"
)

// InjectionState describes the lifecycle of the peer module inside the
// target process.
type InjectionState int32

const (
	StateNotInjected InjectionState = iota
	StateInjecting
	StateInjected
	StateDetached
)

// String returns the state name
func (s InjectionState) String() string {
	switch s {
	case StateNotInjected:
		return "not_injected"
	case StateInjecting:
		return "injecting"
	case StateInjected:
		return "injected"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// PeerHandle identifies the target process and the injected module instance
// inside it. It is owned by the Injector; channels hold a read-only
// reference and never mutate injection state.
type PeerHandle struct {
	PID int32
	// ModuleBase is the loader's reported module handle. Advisory: the
	// remote-thread exit code carrying it is 32 bits wide, so in a 64-bit
	// target it is truncated and only useful as a loaded indicator.
	ModuleBase uintptr

	mu    sync.Mutex
	state InjectionState
}

// State returns the current injection state.
func (h *PeerHandle) State() InjectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *PeerHandle) setState(s InjectionState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Options configures an Injector.
type Options struct {
	// ProcessName is the executable name of the target process.
	ProcessName string
	// ModulePath is the module loaded into the target.
	ModulePath string
	// CommandPort is where the loaded module's command endpoint listens;
	// the injector pings it to detect readiness.
	CommandPort int
	// ReadyTimeout bounds the wait for the peer's ready signal.
	ReadyTimeout time.Duration
}

// Injector loads the peer module into the target process and owns the
// resulting handle's state.
type Injector struct {
	opts Options
	log  *logger.Logger
}

// New creates an Injector.
func New(opts Options) *Injector {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	return &Injector{
		opts: opts,
		log:  logger.Get().With("component", "injector"),
	}
}

// Inject locates the target process, loads the module into it, and waits
// for the peer's command endpoint to answer a ping. Every failure wraps
// ErrInjectionFailed; callers decide whether to retry, since a retry after
// a partial injection can corrupt the target process.
func (i *Injector) Inject(ctx context.Context) (*PeerHandle, error) {
	pid, err := i.findProcess()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrInjectionFailed, err)
	}

	handle := &PeerHandle{PID: pid, state: StateInjecting}
	i.log.InfoWith("loading module into target", "pid", pid, "module", i.opts.ModulePath)

	base, err := loadRemoteModule(pid, i.opts.ModulePath)
	if err != nil {
		handle.setState(StateNotInjected)
		return nil, fmt.Errorf("%w: load module: %v", wcferrors.ErrInjectionFailed, err)
	}
	handle.ModuleBase = base

	if err := i.waitReady(ctx); err != nil {
		handle.setState(StateNotInjected)
		return nil, fmt.Errorf("%w: peer not ready: %v", wcferrors.ErrInjectionFailed, err)
	}

	handle.setState(StateInjected)
	i.log.InfoWith("peer injected and ready", "pid", pid, "command_port", i.opts.CommandPort)
	return handle, nil
}

// Attach binds to a peer module that is already loaded in the target
// process, for instance by an earlier client run. It verifies the peer
// answers on the command endpoint but performs no host-level side effects,
// so Detach on the returned handle will not unload the module.
func (i *Injector) Attach(ctx context.Context) (*PeerHandle, error) {
	pid, err := i.findProcess()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wcferrors.ErrInjectionFailed, err)
	}
	if err := i.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("%w: peer not ready: %v", wcferrors.ErrInjectionFailed, err)
	}
	handle := NewInjectedHandle(pid)
	i.log.InfoWith("attached to already-injected peer", "pid", pid)
	return handle, nil
}

// NewInjectedHandle returns a handle already in the Injected state, with no
// module base recorded. Used by Attach and by callers faking the injection
// boundary.
func NewInjectedHandle(pid int32) *PeerHandle {
	return &PeerHandle{PID: pid, state: StateInjected}
}

// Detach requests a clean unload of the module. Best effort: when the
// target process is already gone this is a no-op success. Safe to call
// multiple times.
func (i *Injector) Detach(handle *PeerHandle) error {
	if handle == nil {
		return nil
	}
	handle.mu.Lock()
	if handle.state != StateInjected {
		handle.mu.Unlock()
		return nil
	}
	handle.state = StateDetached
	handle.mu.Unlock()

	exists, err := process.PidExists(handle.PID)
	if err != nil || !exists {
		i.log.InfoWith("target process already gone, nothing to unload", "pid", handle.PID)
		return nil
	}

	if err := freeRemoteModule(handle.PID, handle.ModuleBase); err != nil {
		i.log.WarnWith("module unload failed", "pid", handle.PID, "error", err)
	}
	return nil
}

// IsAlive reports whether the target process still exists and the handle is
// still injected. Non-blocking.
func (i *Injector) IsAlive(handle *PeerHandle) bool {
	if handle == nil || handle.State() != StateInjected {
		return false
	}
	exists, err := process.PidExists(handle.PID)
	return err == nil && exists
}

// Watch probes liveness every interval and closes the returned channel once
// the peer dies or the handle leaves the Injected state. The handle is
// marked Detached on peer death so stale channels cannot reconnect to it.
func (i *Injector) Watch(ctx context.Context, handle *PeerHandle, interval time.Duration) <-chan struct{} {
	dead := make(chan struct{})
	go func() {
		defer close(dead)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !i.IsAlive(handle) {
					handle.mu.Lock()
					if handle.state == StateInjected {
						handle.state = StateDetached
					}
					handle.mu.Unlock()
					i.log.WarnWith("peer no longer alive", "pid", handle.PID)
					return
				}
			}
		}
	}()
	return dead
}

// findProcess resolves the target process identifier by executable name.
func (i *Injector) findProcess() (int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("list processes: %v", err)
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if name == i.opts.ProcessName {
			return p.Pid, nil
		}
	}
	return 0, fmt.Errorf("process %q not found", i.opts.ProcessName)
}

// waitReady polls the peer's command endpoint with ping frames until it
// answers or the ready timeout elapses.
func (i *Injector) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(i.opts.ReadyTimeout)
	addr := fmt.Sprintf("127.0.0.1:%d", i.opts.CommandPort)

	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := pingOnce(addr); err != nil {
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timed out after %s", i.opts.ReadyTimeout)
	}
	return lastErr
}

// pingOnce performs a single ping exchange on a throwaway connection.
func pingOnce(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	cmd := protocol.NewCommand(protocol.OpPing, nil)
	cmd.Seq = 1
	if err := codec.WriteFrame(conn, uint16(cmd.Opcode), cmd.EncodeBody()); err != nil {
		return err
	}
	tag, body, err := codec.ReadFrame(conn)
	if err != nil {
		return err
	}
	resp, err := protocol.DecodeResponse(tag, body)
	if err != nil {
		return err
	}
	if resp.Seq != cmd.Seq {
		return fmt.Errorf("ready ping answered with seq %d", resp.Seq)
	}
	return nil
}
