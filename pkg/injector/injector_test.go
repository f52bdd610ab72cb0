package injector

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"wcferry/pkg/codec"
	wcferrors "wcferry/pkg/errors"
	"wcferry/pkg/protocol"
)

// TestInjectMissingProcess tests the failure mode when no target exists
func TestInjectMissingProcess(t *testing.T) {
	inj := New(Options{
		ProcessName:  "definitely-not-a-real-process.exe",
		ModulePath:   "spy.dll",
		CommandPort:  19999,
		ReadyTimeout: time.Second,
	})

	handle, err := inj.Inject(context.Background())
	if !errors.Is(err, wcferrors.ErrInjectionFailed) {
		t.Fatalf("err = %v, want ErrInjectionFailed", err)
	}
	if handle != nil {
		t.Errorf("handle = %+v, want nil on failure", handle)
	}
}

// TestAttach tests binding to an already-injected peer via the ready ping
func TestAttach(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	// Minimal peer: answer each command frame with an OK response echoing
	// the correlation identifier.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					tag, body, err := codec.ReadFrame(conn)
					if err != nil {
						return
					}
					r := codec.NewReader(body)
					resp := &protocol.Response{Opcode: protocol.Opcode(tag), Seq: r.Uint32(), Status: protocol.StatusOK}
					if err := codec.WriteFrame(conn, tag, resp.EncodeBody()); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.Fatalf("own process lookup failed: %v", err)
	}
	name, err := self.Name()
	if err != nil {
		t.Fatalf("own process name failed: %v", err)
	}

	inj := New(Options{
		ProcessName:  name,
		ModulePath:   "spy.dll",
		CommandPort:  ln.Addr().(*net.TCPAddr).Port,
		ReadyTimeout: 5 * time.Second,
	})

	handle, err := inj.Attach(context.Background())
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if handle.State() != StateInjected {
		t.Errorf("state = %s, want injected", handle.State())
	}
	if !inj.IsAlive(handle) {
		t.Error("IsAlive = false after Attach")
	}
}

// TestIsAlive tests liveness checks against handle state and process
func TestIsAlive(t *testing.T) {
	inj := New(Options{ProcessName: "x", ModulePath: "y", CommandPort: 1})

	if inj.IsAlive(nil) {
		t.Error("IsAlive(nil) = true")
	}

	// Own pid exists, but handle is not injected.
	handle := &PeerHandle{PID: int32(os.Getpid()), state: StateNotInjected}
	if inj.IsAlive(handle) {
		t.Error("IsAlive = true for a non-injected handle")
	}

	handle.setState(StateInjected)
	if !inj.IsAlive(handle) {
		t.Error("IsAlive = false for an injected handle on a live process")
	}

	// A pid that cannot exist.
	gone := &PeerHandle{PID: 1 << 22, state: StateInjected}
	if inj.IsAlive(gone) {
		t.Error("IsAlive = true for a dead process")
	}
}

// TestDetachIdempotent tests repeated detach calls
func TestDetachIdempotent(t *testing.T) {
	inj := New(Options{ProcessName: "x", ModulePath: "y", CommandPort: 1})

	// Detached target process already gone: no-op success, twice.
	handle := &PeerHandle{PID: 1 << 22, state: StateInjected}
	if err := inj.Detach(handle); err != nil {
		t.Fatalf("first Detach failed: %v", err)
	}
	if handle.State() != StateDetached {
		t.Errorf("state = %s, want detached", handle.State())
	}
	if err := inj.Detach(handle); err != nil {
		t.Fatalf("second Detach failed: %v", err)
	}
	if err := inj.Detach(nil); err != nil {
		t.Fatalf("Detach(nil) failed: %v", err)
	}
}

// TestWatchSignalsPeerDeath tests the liveness watcher
func TestWatchSignalsPeerDeath(t *testing.T) {
	inj := New(Options{ProcessName: "x", ModulePath: "y", CommandPort: 1})
	handle := &PeerHandle{PID: 1 << 22, state: StateInjected}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dead := inj.Watch(ctx, handle, 10*time.Millisecond)
	select {
	case <-dead:
	case <-ctx.Done():
		t.Fatal("Watch never signaled peer death")
	}
	if handle.State() != StateDetached {
		t.Errorf("state = %s, want detached after peer death", handle.State())
	}
}

// TestStateString tests state names
func TestStateString(t *testing.T) {
	states := map[InjectionState]string{
		StateNotInjected:    "not_injected",
		StateInjecting:      "injecting",
		StateInjected:       "injected",
		StateDetached:       "detached",
		InjectionState(999): "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
