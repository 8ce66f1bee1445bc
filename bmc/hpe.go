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
	"fmt"
	"time"

	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/oem"
	"github.com/stmcginnis/gofish/redfish"
)

// hpe drives iLO 4 (Gen9) and iLO 5+ controllers. Pending BIOS settings are applied
// by the firmware on the next reboot, there is no job to create.
type hpe struct {
	c *Client
}

// gen9Reset is the iLO 4 reset action body, posted to the system itself
type gen9Reset struct {
	Action    string `json:"Action"`
	ResetType string `json:"ResetType"`
}

func (h *hpe) Name() string {
	return VendorHPE
}

func (h *hpe) Reset(_ context.Context, resetType redfish.ResetType) error {
	if h.c.info.IsGen9() {
		_, err := h.c.post(h.c.systemURI, gen9Reset{Action: "Reset", ResetType: string(resetType)})
		return err
	}
	return h.c.resetSystem(resetType)
}

func (h *hpe) PostState(sys oem.System) PostState {
	state, ok := sys.PostState()
	if !ok {
		return PostStateUnknown
	}
	return PostState(state)
}

func (h *hpe) SetBiosAttributes(_ context.Context, attrs map[string]interface{}) error {
	uri, err := h.c.biosSettingsURI()
	if err != nil {
		return err
	}
	if h.c.info.IsGen9() {
		return h.c.patchIfMatch(uri, attrs)
	}
	return h.c.patchIfMatch(uri, oem.BiosSettings{Attributes: attrs})
}

func (h *hpe) ResetBiosDefaults(ctx context.Context) error {
	return h.SetBiosAttributes(ctx, map[string]interface{}{"RestoreManufacturingDefaults": "Yes"})
}

func (h *hpe) CommitBiosSettings(context.Context) (string, error) {
	return "", nil
}

func (h *hpe) WaitJob(_ context.Context, jobID string, _, _ time.Duration) error {
	return fmt.Errorf("waiting for job %s: %w", jobID, ErrUnsupported)
}

func (h *hpe) BootSequence(context.Context) (string, []bootorder.BootDevice, error) {
	return "", nil, fmt.Errorf("reading the boot sequence of %s: %w", h.c.Host, ErrUnsupported)
}

func (h *hpe) SetBootSequence(context.Context, string, []bootorder.BootDevice) error {
	return fmt.Errorf("setting the boot sequence of %s: %w", h.c.Host, ErrUnsupported)
}

func (h *hpe) DecorateAttributes(attrs map[string]interface{}, assetTag, serverName string) {
	if assetTag != "" {
		attrs["ServerAssetTag"] = assetTag
	}
	if serverName != "" {
		attrs["ServerName"] = serverName
	}
}
