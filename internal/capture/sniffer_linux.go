//go:build linux

package capture

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/lcalzada-xor/capwatch/internal/telemetry"
)

// htons converts a host-order uint16 to network order, matching the
// teacher repo's raw_socket_linux.go helper of the same purpose.
func htons(i uint16) uint16 {
	return (i<<8)&0xff00 | i>>8
}

// Sniffer reads raw frames off an AF_PACKET socket bound to a monitor
// interface, with no parsing: it only moves bytes onto a FrameQueue.
type Sniffer struct {
	iface string
	fd    int
	queue *FrameQueue
	closed atomic.Bool
}

// NewSniffer opens a promiscuous AF_PACKET SOCK_RAW socket bound to
// iface and returns a Sniffer that will push every frame it reads onto
// queue.
func NewSniffer(iface string, queue *FrameQueue) (*Sniffer, error) {
	fd, err := syscall.Socket(syscall.AF_PACKET, syscall.SOCK_RAW, int(htons(syscall.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("capture: open raw socket: %w", err)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("capture: resolve interface %s: %w", iface, err)
	}

	addr := &syscall.SockaddrLinklayer{
		Protocol: htons(syscall.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("capture: bind to %s: %w", iface, err)
	}

	mreq := syscall.PacketMreq{
		Ifindex: int32(ifi.Index),
		Type:    syscall.PACKET_MR_PROMISC,
	}
	if err := syscall.SetsockoptPacketMreq(fd, syscall.SOL_PACKET, syscall.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("capture: enable promiscuous mode on %s: %w", iface, err)
	}

	return &Sniffer{iface: iface, fd: fd, queue: queue}, nil
}

// Run reads frames in a loop, pushing each onto the queue, until Close
// is called on another goroutine. A read error observed after Close has
// been requested is treated as the expected clean-exit signal and
// returns nil; any other read error is returned to the caller, who
// escalates it as a setup/capture failure.
func (s *Sniffer) Run() error {
	buf := make([]byte, MaxFrameBytes)
	for {
		n, _, err := syscall.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return fmt.Errorf("capture: read from %s: %w", s.iface, err)
		}
		if n <= 0 {
			continue
		}
		telemetry.FramesCaptured.WithLabelValues(s.iface).Inc()
		s.queue.Push(buf[:n])
	}
}

// Close shuts down the socket, unblocking a pending Run read. It is
// safe to call once during Supervisor teardown.
func (s *Sniffer) Close() error {
	s.closed.Store(true)
	if err := syscall.Shutdown(s.fd, syscall.SHUT_RDWR); err != nil {
		log.Printf("capture: shutdown %s: %v", s.iface, err)
	}
	return syscall.Close(s.fd)
}
