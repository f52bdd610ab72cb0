//go:build windows

package injector

import (
	"fmt"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procWriteProcessMemory = modkernel32.NewProc("WriteProcessMemory")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = modkernel32.NewProc("GetExitCodeThread")
)

const remoteCallTimeout = 10_000 // milliseconds

// loadRemoteModule loads the module at path into the target process by
// starting a remote thread on kernel32!LoadLibraryW. The returned value is
// the thread's exit code, which is the loader's HMODULE truncated to 32
// bits; in a 64-bit target the real handle does not fit, so treat the
// result as a loaded/not-loaded indicator rather than a usable base.
func loadRemoteModule(pid int32, path string) (uintptr, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	pathUTF16, err := windows.UTF16FromString(abs)
	if err != nil {
		return 0, err
	}

	access := uint32(windows.PROCESS_CREATE_THREAD | windows.PROCESS_QUERY_INFORMATION |
		windows.PROCESS_VM_OPERATION | windows.PROCESS_VM_WRITE | windows.PROCESS_VM_READ)
	proc, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		return 0, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	size := uintptr(len(pathUTF16)) * unsafe.Sizeof(pathUTF16[0])
	remote, _, allocErr := procVirtualAllocEx.Call(
		uintptr(proc), 0, size,
		uintptr(windows.MEM_COMMIT|windows.MEM_RESERVE),
		uintptr(windows.PAGE_READWRITE))
	if remote == 0 {
		return 0, fmt.Errorf("alloc remote buffer: %w", allocErr)
	}
	defer procVirtualFreeEx.Call(uintptr(proc), remote, 0, uintptr(windows.MEM_RELEASE))

	var written uintptr
	ok, _, writeErr := procWriteProcessMemory.Call(
		uintptr(proc), remote,
		uintptr(unsafe.Pointer(&pathUTF16[0])), size,
		uintptr(unsafe.Pointer(&written)))
	if ok == 0 || written != size {
		return 0, fmt.Errorf("write module path: %w", writeErr)
	}

	loadLibrary, err := kernel32Export("LoadLibraryW")
	if err != nil {
		return 0, err
	}
	return callRemote(proc, loadLibrary, remote)
}

// freeRemoteModule unloads a previously loaded module by starting a remote
// thread on kernel32!FreeLibrary with the module handle. Skipped when the
// recorded base may be a truncated HMODULE (64-bit process), since calling
// FreeLibrary with a wrong handle is worse than leaving the module loaded;
// unload stays best effort either way.
func freeRemoteModule(pid int32, base uintptr) error {
	if base == 0 {
		return nil
	}
	if unsafe.Sizeof(base) == 8 {
		return nil
	}
	access := uint32(windows.PROCESS_CREATE_THREAD | windows.PROCESS_QUERY_INFORMATION |
		windows.PROCESS_VM_OPERATION | windows.PROCESS_VM_READ)
	proc, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	freeLibrary, err := kernel32Export("FreeLibrary")
	if err != nil {
		return err
	}
	_, err = callRemote(proc, freeLibrary, base)
	return err
}

// kernel32Export resolves an export of kernel32, which is mapped at the
// same base address in every process of the session.
func kernel32Export(name string) (uintptr, error) {
	handle, err := windows.GetModuleHandle(windows.StringToUTF16Ptr("kernel32.dll"))
	if err != nil {
		return 0, fmt.Errorf("kernel32 handle: %w", err)
	}
	addr, err := windows.GetProcAddress(handle, name)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	return addr, nil
}

// callRemote starts a thread in the target process at entry with one
// argument and returns the thread's exit code.
func callRemote(proc windows.Handle, entry, arg uintptr) (uintptr, error) {
	thread, _, threadErr := procCreateRemoteThread.Call(
		uintptr(proc), 0, 0, entry, arg, 0, 0)
	if thread == 0 {
		return 0, fmt.Errorf("create remote thread: %w", threadErr)
	}
	handle := windows.Handle(thread)
	defer windows.CloseHandle(handle)

	event, err := windows.WaitForSingleObject(handle, remoteCallTimeout)
	if err != nil {
		return 0, fmt.Errorf("wait for remote thread: %w", err)
	}
	if event != windows.WAIT_OBJECT_0 {
		return 0, fmt.Errorf("remote thread did not finish (wait=%d)", event)
	}

	var exitCode uint32
	ok, _, exitErr := procGetExitCodeThread.Call(thread, uintptr(unsafe.Pointer(&exitCode)))
	if ok == 0 {
		return 0, fmt.Errorf("remote thread exit code: %w", exitErr)
	}
	if exitCode == 0 {
		return 0, fmt.Errorf("remote call returned NULL")
	}
	return uintptr(exitCode), nil
}
