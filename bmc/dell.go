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

package bmc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/oem"
	"github.com/stmcginnis/gofish/redfish"
	"go.uber.org/zap"
)

// dell drives iDRAC 8 and 9 controllers. BIOS and boot order changes stay pending
// until a configuration job applies them on the next reboot.
type dell struct {
	c       *Client
	jobsURI string
}

func (d *dell) Name() string {
	return VendorDell
}

func (d *dell) Reset(_ context.Context, resetType redfish.ResetType) error {
	return d.c.resetSystem(resetType)
}

// iDRAC has no POST state, the power state stands in for it. Only the
// transitional PoweringOn and PoweringOff states read as InPost, a warm restart
// keeps reporting On throughout.
func (d *dell) PostState(sys oem.System) PostState {
	switch sys.PowerState {
	case PowerStateOff:
		return PostStatePowerOff
	case PowerStateOn:
		return PostStateFinishedPost
	}
	return PostStateInPost
}

func (d *dell) SetBiosAttributes(_ context.Context, attrs map[string]interface{}) error {
	uri, err := d.c.biosSettingsURI()
	if err != nil {
		return err
	}
	return d.c.patchIfMatch(uri, oem.BiosSettings{Attributes: attrs})
}

func (d *dell) ResetBiosDefaults(_ context.Context) error {
	bios, uri, err := d.c.readBios()
	if err != nil {
		return err
	}

	target := bios.Actions.ResetBios.Target
	if target == "" {
		target = strings.TrimSuffix(uri, "/") + "/Actions/Bios.ResetBios"
	}

	_, err = d.c.post(target, struct{}{})
	return err
}

func (d *dell) jobs() (string, error) {
	if d.jobsURI != "" {
		return d.jobsURI, nil
	}

	managers, err := d.c.api.Service.Managers()
	if err != nil {
		return "", wrapError(http.MethodGet, "managers", err)
	}
	if len(managers) == 0 {
		return "", errors.New("controller reports no managers")
	}

	d.jobsURI = strings.TrimSuffix(managers[0].ODataID, "/") + "/Jobs"
	return d.jobsURI, nil
}

func (d *dell) CommitBiosSettings(_ context.Context) (string, error) {
	settings, err := d.c.biosSettingsURI()
	if err != nil {
		return "", err
	}

	jobs, err := d.jobs()
	if err != nil {
		return "", err
	}

	resp, err := d.c.post(jobs, oem.JobCreate{TargetSettingsURI: settings})
	if err != nil {
		return "", err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("POST %s: no job location returned", jobs)
	}

	jobID := path.Base(strings.TrimSuffix(location, "/"))
	d.c.log.Info("bios configuration job created", zap.String("job_id", jobID))
	return jobID, nil
}

func (d *dell) WaitJob(ctx context.Context, jobID string, timeout, interval time.Duration) error {
	jobs, err := d.jobs()
	if err != nil {
		return err
	}
	uri := jobs + "/" + jobID

	var job oem.Job
	err = poll(ctx, timeout, interval, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.c.getJSON(uri, &job); err != nil {
			return err
		}
		if !job.Done() {
			d.c.log.Debug("waiting for job",
				zap.String("job_id", jobID),
				zap.String("job_state", job.JobState),
				zap.Int("percent_complete", job.PercentComplete))
			return fmt.Errorf("job %s is %s", jobID, job.JobState)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("waiting for job %s: %w", jobID, err)
	}

	if job.Failed() {
		return fmt.Errorf("job %s ended %s: %s", jobID, job.JobState, job.Message)
	}
	d.c.log.Info("job completed", zap.String("job_id", jobID), zap.String("message", job.Message))
	return nil
}

func (d *dell) bootSourcesURI() string {
	return strings.TrimSuffix(d.c.systemURI, "/") + "/BootSources"
}

func (d *dell) BootSequence(ctx context.Context) (string, []bootorder.BootDevice, error) {
	mode, err := d.c.BootMode(ctx)
	if err != nil {
		return "", nil, err
	}
	key := bootorder.SequenceKey(mode)

	var sources oem.BootSources
	if err := d.c.getJSON(d.bootSourcesURI(), &sources); err != nil {
		return "", nil, err
	}

	devices, ok, err := sources.Sequence(key)
	if err != nil {
		return "", nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if !ok {
		return "", nil, fmt.Errorf("boot sources of %s have no %s attribute", d.c.Host, key)
	}
	return key, devices, nil
}

func (d *dell) SetBootSequence(_ context.Context, key string, devices []bootorder.BootDevice) error {
	return d.c.patch(d.bootSourcesURI()+"/Settings", oem.NewBootSourcesSettings(key, devices))
}

func (d *dell) DecorateAttributes(map[string]interface{}, string, string) {}
