package publish

import (
	"fmt"
	"log"
	"net"
	"sync"

	"gpsclock/internal/gps"
)

type udpConn interface {
	Write([]byte) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

// udpPublisher sends one JSON datagram per update.
type udpPublisher struct {
	dest string
	conn udpConn
}

func openUDP(dest string) (Publisher, error) {
	return newUDPPublisher(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newUDPPublisher(dest string, resolve resolveFunc, dial dialFunc) (*udpPublisher, error) {
	if dest == "" {
		return nil, fmt.Errorf("udp dest is required")
	}
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	log.Printf("publish udp dest=%s", dest)
	return &udpPublisher{dest: dest, conn: conn}, nil
}

func (p *udpPublisher) Update(pos gps.Position) error {
	payload, err := encode(pos)
	if err != nil {
		return err
	}
	if _, err := p.conn.Write(payload); err != nil {
		return fmt.Errorf("%w: udp send %s: %v", ErrChannel, p.dest, err)
	}
	return nil
}

func (p *udpPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// udpSubscriber keeps the last datagram received on a listening socket.
type udpSubscriber struct {
	conn *net.UDPConn
	done chan struct{}

	mu   sync.Mutex
	last gps.Position
	have bool
}

func subscribeUDP(listen string) (Subscriber, error) {
	if listen == "" {
		return nil, fmt.Errorf("udp listen is required")
	}
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	s := &udpSubscriber{conn: conn, done: make(chan struct{})}
	go s.loop()
	return s, nil
}

func (s *udpSubscriber) loop() {
	defer close(s.done)
	buf := make([]byte, 2048)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pos, err := decode(buf[:n])
		if err != nil {
			log.Printf("publish udp: drop datagram: %v", err)
			continue
		}
		s.mu.Lock()
		s.last, s.have = pos, true
		s.mu.Unlock()
	}
}

func (s *udpSubscriber) Current() (gps.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return gps.Position{}, ErrNoData
	}
	return s.last, nil
}

func (s *udpSubscriber) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

// addr reports the bound address; useful when listening on port 0.
func (s *udpSubscriber) addr() string {
	return s.conn.LocalAddr().String()
}
