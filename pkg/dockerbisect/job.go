package dockerbisect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creasty/defaults"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type jobYaml struct {
	Image string `yaml:"image"`

	Command    []string `yaml:"command"`
	Entrypoint []string `yaml:"entrypoint"`

	Timeout int `yaml:"timeout" default:"10"`

	MaxConcurrentProbes uint `yaml:"maxConcurrentProbes"`
}

// GetJobFromConfig reads in a job config in yaml format from a reader and initializes the corresponding job struct
func GetJobFromConfig(r io.Reader) (*Job, error) {
	var config jobYaml
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	if config.Timeout < 0 {
		return nil, fmt.Errorf("invalid timeout of %d seconds", config.Timeout)
	}

	// Convert to Job struct
	return &Job{
		Image: config.Image,

		Command:    config.Command,
		Entrypoint: config.Entrypoint,

		Timeout: time.Duration(config.Timeout) * time.Second,

		MaxConcurrentProbes: config.MaxConcurrentProbes,
	}, nil
}

// A Job finds the layers of an image which change the output of a command.
type Job struct {
	Image string // The name or ID of the image whose layers get bisected

	Command    []string      // The command to run against every probed layer
	Entrypoint []string      // Overrides the entrypoint of the layers if not empty
	Timeout    time.Duration // How long the command may run per layer. Zero means no timeout

	MaxConcurrentProbes uint // The max amount of layers that can be probed concurrently, or 0 if no limit

	Log *logrus.Logger // The log to which information gets printed to

	Prober  Prober        // Probes layers. If nil, a DockerProber running Command is used
	History HistorySource // Provides the image history. If nil, the docker daemon is queried

	progress atomic.Pointer[Progress] // Set once the history of the image is known

	initOnce sync.Once
	done     chan struct{} // Closed once Run returned

	mu     sync.Mutex
	result *Result
	err    error
}

// Run the job. It loads the image history, probes the first and last probeable layer and bisects the layers in between if their outputs differ.
//
// The returned result contains the transitions found, unsorted, as well as the layers which were skipped for lacking an identifier.
// If there are not enough probeable layers, the returned error wraps [ErrInsufficientLayers] and the result still contains the skipped layers.
// Run may only be called once per job.
func (job *Job) Run(ctx context.Context) (*Result, error) {
	job.init()

	res, err := job.run(ctx)

	job.mu.Lock()
	job.result, job.err = res, err
	job.mu.Unlock()
	close(job.done)

	return res, err
}

func (job *Job) run(ctx context.Context) (*Result, error) {
	// Init the logger
	if job.Log == nil {
		// Mute logger
		job.Log = logrus.New()
		job.Log.SetOutput(io.Discard)
	}
	log := job.Log.WithField("image", job.Image)

	if job.Prober == nil && len(job.Command) == 0 {
		return nil, fmt.Errorf("no command to run against the layers of %s", job.Image)
	}

	log.Info("Getting image history...")
	history, err := job.getHistory(ctx)
	if err != nil {
		return nil, err
	}

	layers, skipped, all := LayersFromHistory(history)
	res := &Result{
		Skipped: skipped,
		History: all,
	}
	for _, s := range skipped {
		log.Infof("Skipping layer %d without identifier: %s", s.Height, Truncate(s.Command, 80))
	}

	if len(layers) < 2 {
		return res, errors.Join(fmt.Errorf("%d layers of image %s found in cache", len(layers), job.Image), ErrInsufficientLayers)
	}

	progress := NewProgress(len(all))
	job.progress.Store(progress)

	prober := job.Prober
	if prober == nil {
		dockerProber, err := NewDockerProber(job.Command, job.Entrypoint, job.Timeout, log)
		if err != nil {
			return res, err
		}
		defer dockerProber.Close()
		prober = dockerProber
	}

	tracked := &trackingProber{
		prober:   newLimitProber(prober, job.MaxConcurrentProbes),
		progress: progress,
		log:      log,
	}

	log.Infof("Bisecting %d layers...", len(layers))
	transitions, err := FindTransitions(ctx, layers, tracked)
	if err != nil {
		return res, errors.Join(fmt.Errorf("bisection of image %s failed", job.Image), err)
	}
	res.Transitions = transitions
	// Layers outside of skipped ranges, e.g. missing ones, are never accounted for otherwise
	progress.Finish()

	log.Infof("Found %d transitions", len(transitions))
	return res, nil
}

// getHistory returns the image history from job.History, or from the docker daemon if it is nil
func (job *Job) getHistory(ctx context.Context) ([]image.HistoryResponseItem, error) {
	source := job.History
	if source == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create new docker client"), err)
		}
		defer cli.Close()
		source = cli
	}

	history, err := source.ImageHistory(ctx, job.Image)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get history of image %s", job.Image), err)
	}
	return history, nil
}

func (job *Job) init() {
	job.initOnce.Do(func() {
		job.done = make(chan struct{})
	})
}

// Progress returns the progress of the running job, or nil if its image history was not loaded yet
func (job *Job) Progress() *Progress {
	return job.progress.Load()
}

// Done returns a channel which is closed once Run returned
func (job *Job) Done() <-chan struct{} {
	job.init()
	return job.done
}

// Result returns what Run returned. It returns [ErrJobRunning] if Run did not return yet
func (job *Job) Result() (*Result, error) {
	select {
	case <-job.Done():
	default:
		return nil, ErrJobRunning
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result, job.err
}
