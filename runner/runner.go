/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/comcast/bmcconf/bmc"
	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/common"
	"github.com/comcast/bmcconf/config"
	"github.com/comcast/bmcconf/logger"
	"github.com/comcast/bmcconf/metrics"
	"github.com/comcast/bmcconf/pool"
	"github.com/hashicorp/go-multierror"
	"github.com/nrednav/cuid2"
	"go.uber.org/zap"
)

var generate, _ = cuid2.Init(
	cuid2.WithLength(32),
)

// Controller is the part of a controller session the workflows drive.
type Controller interface {
	Close()
	PowerState(ctx context.Context) (string, error)
	Reset(ctx context.Context, resetType string) error
	WaitPowerState(ctx context.Context, want string, timeout, interval time.Duration) error
	PostState(ctx context.Context) (bmc.PostState, error)
	WaitForPost(ctx context.Context, timeout, interval time.Duration) error
	SetBiosAttributes(ctx context.Context, attrs map[string]interface{}) error
	ResetBiosDefaults(ctx context.Context) error
	CommitBiosSettings(ctx context.Context) (string, error)
	WaitJob(ctx context.Context, jobID string, timeout, interval time.Duration) error
	BootSequence(ctx context.Context) (string, []bootorder.BootDevice, error)
	SetBootSequence(ctx context.Context, key string, devices []bootorder.BootDevice) error
	OneGbpsNIC(ctx context.Context) (string, error)
	SetAssetTag(ctx context.Context, tag string) error
	SetAccountPassword(ctx context.Context, userName, password string) error
	DecorateAttributes(attrs map[string]interface{}, assetTag, serverName string)
}

// Connector opens a controller session for target.
type Connector func(ctx context.Context, target config.Target, cred *common.Credential, cfg *config.Config) (Controller, error)

// Credentials hands out controller credentials per target.
type Credentials interface {
	Resolve(ctx context.Context, profile, host string) (*common.Credential, error)
	Lookup(ctx context.Context, profile, host string) (*common.Credential, error)
	Forget(host string)
}

// Workflow is the list of steps run against every target.
type Workflow interface {
	Name() string
	Run(ctx context.Context, s *Session) error
}

func connectBMC(ctx context.Context, target config.Target, cred *common.Credential, cfg *config.Config) (Controller, error) {
	c, err := bmc.Connect(ctx, target, cred, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Runner executes a workflow against many targets through the worker pool.
type Runner struct {
	cfg     *config.Config
	creds   Credentials
	connect Connector
	metrics *metrics.Recorder
	log     *zap.Logger

	// RunID is attached as trace_id to every log line of the run
	RunID string

	outMu sync.Mutex
	out   io.Writer
}

// Option customizes a Runner.
type Option func(*Runner)

// WithConnector replaces the redfish connector, used by tests.
func WithConnector(c Connector) Option {
	return func(r *Runner) {
		r.connect = c
	}
}

// New returns a Runner writing status lines to out.
func New(cfg *config.Config, creds Credentials, rec *metrics.Recorder, out io.Writer, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		creds:   creds,
		connect: connectBMC,
		metrics: rec,
		out:     out,
		RunID:   generate(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = zap.L().With(zap.String("trace_id", r.RunID))
	return r
}

// Run runs w against every target and returns the failures of all targets combined.
func (r *Runner) Run(ctx context.Context, targets []config.Target, w Workflow) error {
	r.log.Info("starting run",
		zap.String("operation", w.Name()),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", r.cfg.Concurrency))

	r.metrics.Targets(w.Name(), len(targets))

	p := pool.NewPool(nil, r.cfg.Concurrency)
	for _, target := range targets {
		t := target
		p.AddTask(pool.NewTask(t.Host, func(ctx context.Context) error {
			return r.runTarget(ctx, t, w)
		}))
	}

	start := time.Now()
	p.Run(ctx)

	var failed int
	var result *multierror.Error
	for _, task := range p.Tasks {
		r.metrics.Observe(task.Target, w.Name(), task.Duration, task.Err)
		if task.Err != nil {
			r.log.Error("operation failed",
				zap.String("target", task.Target),
				zap.String("operation", w.Name()),
				zap.Error(task.Err))
			r.printf(task.Target, "FAILED: %v", task.Err)
			failed++
			result = multierror.Append(result, fmt.Errorf("%s: %w", task.Target, task.Err))
			continue
		}
		r.printf(task.Target, "done")
	}

	r.log.Info("finished run",
		zap.String("operation", w.Name()),
		zap.Int("failed", failed),
		zap.Float64("elapsed_time_sec", time.Since(start).Seconds()))

	return result.ErrorOrNil()
}

func (r *Runner) runTarget(ctx context.Context, target config.Target, w Workflow) error {
	log := r.log.With(zap.String("target", target.Host), zap.String("operation", w.Name()))
	ctx = logger.WithContext(ctx, log)

	cred, err := r.creds.Resolve(ctx, target.CredentialProfile, target.Host)
	if err != nil {
		return err
	}

	c, err := r.connect(ctx, target, cred, r.cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return w.Run(ctx, &Session{
		Controller: c,
		Target:     target,
		Config:     r.cfg,
		creds:      r.creds,
		log:        log,
		runner:     r,
	})
}

func (r *Runner) printf(host, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	r.outMu.Lock()
	defer r.outMu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		fmt.Fprintf(r.out, "%s: %s\n", host, line)
	}
}

// Session is one open controller session handed to a workflow.
type Session struct {
	Controller
	Target config.Target
	Config *config.Config

	creds  Credentials
	log    *zap.Logger
	runner *Runner
}

// Printf writes a status line for the target of the session.
func (s *Session) Printf(format string, args ...interface{}) {
	s.runner.printf(s.Target.Host, format, args...)
}

// Log returns the logger of the session, tagged with the run and target.
func (s *Session) Log() *zap.Logger {
	return s.log
}
