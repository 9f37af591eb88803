package server

import (
	"context"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/engine"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/job"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
)

// JobServer runs the background runner and the recurring ticks next to
// the HTTP server inside the same process.
type JobServer struct {
	log    *log.Logger
	runner *engine.Runner
	job    *job.Job
}

func NewJobServer(
	log *log.Logger,
	runner *engine.Runner,
	job *job.Job,
) *JobServer {
	return &JobServer{
		log:    log,
		runner: runner,
		job:    job,
	}
}

func (s *JobServer) Start(ctx context.Context) error {
	s.log.Info("starting job server")
	if err := s.runner.Start(ctx); err != nil {
		return err
	}
	return s.job.Start(ctx)
}

func (s *JobServer) Stop(ctx context.Context) error {
	s.log.Info("stopping job server")
	if err := s.job.Stop(ctx); err != nil {
		return err
	}
	return s.runner.Stop(ctx)
}
