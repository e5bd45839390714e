//go:build linux

package v4l2

import (
	"errors"
	"syscall"
	"unsafe"
)

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errors.Is(errno, syscall.EINTR) {
			continue
		}
		return errno
	}
}

func open(path string) (int, error) {
	return syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
}

func close(fd int) error {
	return syscall.Close(fd)
}

func mapBuffer(fd int, offset uint32, length uint32) ([]byte, error) {
	return syscall.Mmap(fd, int64(offset), int(length),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

func unmapBuffer(b []byte) error {
	return syscall.Munmap(b)
}
