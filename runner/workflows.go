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
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/comcast/bmcconf/bmc"
	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/oem"
	"go.uber.org/zap"
)

// Reset types accepted by ComputerSystem.Reset
const (
	ResetOn               = "On"
	ResetForceOff         = "ForceOff"
	ResetGracefulShutdown = "GracefulShutdown"
	ResetGracefulRestart  = "GracefulRestart"
	ResetForceRestart     = "ForceRestart"
	ResetPushPowerButton  = "PushPowerButton"
	ResetNmi              = "Nmi"
	ResetPowerCycle       = "PowerCycle"

	// PowerStatus only reports the power state
	PowerStatus = "status"
)

// ResetTypes lists the accepted reset types.
var ResetTypes = []string{
	ResetOn, ResetForceOff, ResetGracefulShutdown, ResetGracefulRestart,
	ResetForceRestart, ResetPushPowerButton, ResetNmi, ResetPowerCycle,
}

// ImpliedPowerState returns the power state a reset ends in, empty when it
// cannot be told.
func ImpliedPowerState(resetType string) string {
	switch resetType {
	case ResetOn, ResetForceRestart, ResetGracefulRestart, ResetPowerCycle:
		return bmc.PowerStateOn
	case ResetForceOff, ResetGracefulShutdown:
		return bmc.PowerStateOff
	}
	return ""
}

// Reboot holds the steps shared by the workflows that leave pending settings.
type Reboot struct {
	Reboot    bool
	ResetType string
	WaitJob   bool
}

func (rb Reboot) finish(ctx context.Context, s *Session, jobID string) error {
	if rb.Reboot {
		resetType := rb.ResetType
		if resetType == "" {
			resetType = ResetForceRestart
		}
		s.Printf("rebooting (%s)", resetType)
		if err := s.Reset(ctx, resetType); err != nil {
			return fmt.Errorf("rebooting: %w", err)
		}
	}

	if !rb.WaitJob || jobID == "" {
		return nil
	}

	if !rb.Reboot {
		s.Log().Warn("waiting for a job that only runs on the next reboot", zap.String("job_id", jobID))
	}
	s.Printf("waiting for job %s", jobID)
	if err := s.WaitJob(ctx, jobID, s.Config.JobTimeout, s.Config.PollInterval); err != nil {
		return err
	}
	s.Printf("job %s completed", jobID)
	return nil
}

// ApplyBios sets the BIOS attributes of a file, optionally after a factory reset.
type ApplyBios struct {
	Reboot

	Attributes map[string]interface{}
	Defaults   bool
}

func (a ApplyBios) Name() string {
	return "apply"
}

func (a ApplyBios) Run(ctx context.Context, s *Session) error {
	state, err := s.PowerState(ctx)
	if err != nil {
		return fmt.Errorf("reading power state: %w", err)
	}
	s.Printf("power state: %s", state)

	post, err := s.PostState(ctx)
	if err != nil {
		return fmt.Errorf("reading post state: %w", err)
	}
	if post == bmc.PostStatePowerOff {
		s.Printf("powering on")
		if err := s.Reset(ctx, ResetOn); err != nil {
			return fmt.Errorf("powering on: %w", err)
		}
	}

	if a.Defaults {
		s.Printf("resetting bios to factory defaults")
		if err := s.ResetBiosDefaults(ctx); err != nil {
			return fmt.Errorf("resetting bios defaults: %w", err)
		}

		post, err = s.PostState(ctx)
		if err != nil {
			return fmt.Errorf("reading post state: %w", err)
		}
		if post != bmc.PostStatePowerOff {
			s.Printf("rebooting to apply the factory defaults")
			if err := s.Reset(ctx, ResetForceRestart); err != nil {
				return fmt.Errorf("rebooting: %w", err)
			}
		}
	}

	// settings changed midway through POST can be overwritten by the firmware.
	// HPE reports POST progress, Dell only its PoweringOn transition.
	s.Printf("waiting for POST to finish")
	if err := s.WaitForPost(ctx, s.Config.PostTimeout, s.Config.PollInterval); err != nil {
		return err
	}

	attrs := maps.Clone(a.Attributes)
	if attrs == nil {
		attrs = make(map[string]interface{})
	}
	s.DecorateAttributes(attrs, s.Target.AssetTag, s.Config.ServerName(s.Target.AssetTag))

	s.Printf("setting %d bios attributes", len(attrs))
	if err := s.SetBiosAttributes(ctx, attrs); err != nil {
		return fmt.Errorf("setting bios attributes: %w", err)
	}

	if s.Target.AssetTag != "" {
		s.Printf("setting asset tag %s", s.Target.AssetTag)
		if err := s.SetAssetTag(ctx, s.Target.AssetTag); err != nil {
			return fmt.Errorf("setting asset tag: %w", err)
		}
	}

	jobID, err := s.CommitBiosSettings(ctx)
	if err != nil {
		return fmt.Errorf("committing bios settings: %w", err)
	}
	if jobID != "" {
		s.Printf("bios configuration job %s scheduled", jobID)
	}

	return a.finish(ctx, s, jobID)
}

// BootOrder puts the primary disk first and the management NIC second.
type BootOrder struct {
	Reboot

	DryRun bool
	// NICAuto promotes the lowest sorted 1 Gbps interface instead of the fixed NIC names
	NICAuto bool
}

func (b BootOrder) Name() string {
	return "boot-order"
}

func (b BootOrder) Run(ctx context.Context, s *Session) error {
	key, devices, err := s.BootSequence(ctx)
	if err != nil {
		return fmt.Errorf("reading boot sequence: %w", err)
	}
	s.Printf("boot sequence %s has %d devices", key, len(devices))

	policy := bootorder.DefaultPolicy()
	if b.NICAuto {
		nic, err := s.OneGbpsNIC(ctx)
		if err != nil {
			return fmt.Errorf("finding the 1 Gbps nic: %w", err)
		}
		s.Printf("management nic: %s", nic)
		policy.NICs = []string{nic}
	}

	normalized := bootorder.NormalizeWith(devices, policy)

	payload, err := json.MarshalIndent(oem.NewBootSourcesSettings(key, normalized), "", "  ")
	if err != nil {
		return err
	}
	s.Printf("%s", payload)

	if b.DryRun {
		return nil
	}

	if err := s.SetBootSequence(ctx, key, normalized); err != nil {
		return fmt.Errorf("setting boot sequence: %w", err)
	}

	jobID, err := s.CommitBiosSettings(ctx)
	if err != nil {
		return fmt.Errorf("committing boot sequence: %w", err)
	}
	if jobID != "" {
		s.Printf("bios configuration job %s scheduled", jobID)
	}

	return b.finish(ctx, s, jobID)
}

// Power reports the power state or sends a reset.
type Power struct {
	Action string
	Wait   bool
}

func (p Power) Name() string {
	return "power"
}

func (p Power) Run(ctx context.Context, s *Session) error {
	if p.Action == "" || p.Action == PowerStatus {
		state, err := s.PowerState(ctx)
		if err != nil {
			return fmt.Errorf("reading power state: %w", err)
		}
		s.Printf("power state: %s", state)
		return nil
	}

	s.Printf("sending %s", p.Action)
	if err := s.Reset(ctx, p.Action); err != nil {
		return fmt.Errorf("sending %s: %w", p.Action, err)
	}

	want := ImpliedPowerState(p.Action)
	if !p.Wait || want == "" {
		return nil
	}

	s.Printf("waiting for power state %s", want)
	if err := s.WaitPowerState(ctx, want, s.Config.PowerTimeout, s.Config.PollInterval); err != nil {
		return err
	}
	s.Printf("power state: %s", want)
	return nil
}

// RotatePassword sets a new password on a controller account. The password is
// either given or read from a credential profile.
type RotatePassword struct {
	UserName string
	Password string
	Profile  string
}

func (rp RotatePassword) Name() string {
	return "rotate-password"
}

func (rp RotatePassword) Run(ctx context.Context, s *Session) error {
	user := rp.UserName
	if user == "" {
		user = "Administrator"
	}

	password := rp.Password
	if rp.Profile != "" {
		cred, err := s.creds.Lookup(ctx, rp.Profile, s.Target.Host)
		if err != nil {
			return fmt.Errorf("reading the new password: %w", err)
		}
		password = cred.Pass
	}
	if password == "" {
		return errors.New("no new password given")
	}

	if err := s.SetAccountPassword(ctx, user, password); err != nil {
		return fmt.Errorf("setting the password of %s: %w", user, err)
	}
	s.creds.Forget(s.Target.Host)

	s.Printf("password of %s rotated", user)
	return nil
}
