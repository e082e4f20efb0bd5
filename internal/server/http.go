package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/DominicWuest/dockerbisect/pkg/dockerbisect"
	"github.com/gin-gonic/gin"
	"github.com/phayes/freeport"
)

type httpServer struct {
	job  *dockerbisect.Job
	port int
}

func (h *httpServer) Init(port int, job *dockerbisect.Job) error {
	h.job = job

	if port == 0 {
		var err error
		port, err = freeport.GetFreePort()
		if err != nil {
			return errors.Join(fmt.Errorf("failed to get a free port"), err)
		}
	}
	h.port = port

	go h.router().Run(fmt.Sprintf("localhost:%d", port))
	return nil
}

func (h *httpServer) Port() int {
	return h.port
}

func (h *httpServer) router() *gin.Engine {
	router := gin.Default()

	router.GET("/progress", h.getProgress)
	router.GET("/result", h.getResult)

	return router
}

type progressResponse struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type layerResponse struct {
	Height  int    `json:"height"`
	ID      string `json:"id"`
	Command string `json:"command"`
}

type probeResultResponse struct {
	Layer  layerResponse `json:"layer"`
	Output string        `json:"output"`
}

type transitionResponse struct {
	Before *probeResultResponse `json:"before,omitempty"`
	After  probeResultResponse  `json:"after"`
}

type resultResponse struct {
	Transitions []transitionResponse `json:"transitions"`
	Skipped     []layerResponse      `json:"skipped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *httpServer) getProgress(c *gin.Context) {
	var res progressResponse
	if progress := h.job.Progress(); progress != nil {
		res.Done, res.Total = progress.Snapshot()
	}
	c.JSON(http.StatusOK, res)
}

func (h *httpServer) getResult(c *gin.Context) {
	result, err := h.job.Result()
	if errors.Is(err, dockerbisect.ErrJobRunning) {
		c.AbortWithStatus(http.StatusAccepted)
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	transitions := slices.Clone(result.Transitions)
	dockerbisect.SortTransitions(transitions)

	res := resultResponse{
		Transitions: make([]transitionResponse, 0, len(transitions)),
		Skipped:     make([]layerResponse, 0, len(result.Skipped)),
	}
	for _, t := range transitions {
		tr := transitionResponse{After: toProbeResultResponse(t.After)}
		if t.Before != nil {
			before := toProbeResultResponse(*t.Before)
			tr.Before = &before
		}
		res.Transitions = append(res.Transitions, tr)
	}
	for _, s := range result.Skipped {
		res.Skipped = append(res.Skipped, layerResponse{Height: s.Height, Command: s.Command})
	}

	c.JSON(http.StatusOK, res)
}

func toProbeResultResponse(r dockerbisect.ProbeResult) probeResultResponse {
	return probeResultResponse{
		Layer: layerResponse{
			Height:  r.Layer.Height,
			ID:      r.Layer.ID,
			Command: r.Layer.Command,
		},
		Output: r.Output,
	}
}
