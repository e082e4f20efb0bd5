package server

import (
	"fmt"

	"github.com/DominicWuest/dockerbisect/pkg/dockerbisect"
)

type ServerType int

const (
	HTTP ServerType = iota
)

// A Server reports the progress and result of a running job
type Server interface {
	Init(int, *dockerbisect.Job) error
	Port() int
}

// NewServer starts a server of the passed type on the passed port. A port of 0 picks a free port
func NewServer(serverType ServerType, port int, job *dockerbisect.Job) (Server, error) {
	switch serverType {
	case HTTP:
		server := &httpServer{}
		return server, server.Init(port, job)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
