package events

import (
	"bufio"
	"log"
	"net"
)

type Server struct {
	Addr string
	Hub  *Hub

	listener net.Listener
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{Addr: addr, Hub: hub}
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Printf("[events] tcp relay listening on %s", s.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}

		s.Hub.Add(conn)
		s.Hub.Welcome(conn)

		go func(c net.Conn) {
			defer s.Hub.Remove(c)
			sc := bufio.NewScanner(c)
			for sc.Scan() {
				// subscribers don't send anything meaningful; just drain.
			}
		}(conn)
	}
}

func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
