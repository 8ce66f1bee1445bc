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
	"strings"
	"time"

	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/oem"
	"github.com/stmcginnis/gofish/redfish"
)

const (
	VendorDell = "dell"
	VendorHPE  = "hpe"
)

// Vendor holds the operations whose redfish flavor differs between manufacturers.
type Vendor interface {
	Name() string
	Reset(ctx context.Context, resetType redfish.ResetType) error
	PostState(sys oem.System) PostState
	SetBiosAttributes(ctx context.Context, attrs map[string]interface{}) error
	ResetBiosDefaults(ctx context.Context) error
	CommitBiosSettings(ctx context.Context) (string, error)
	WaitJob(ctx context.Context, jobID string, timeout, interval time.Duration) error
	BootSequence(ctx context.Context) (string, []bootorder.BootDevice, error)
	SetBootSequence(ctx context.Context, key string, devices []bootorder.BootDevice) error
	DecorateAttributes(attrs map[string]interface{}, assetTag, serverName string)
}

// DetectVendor returns the driver name for a system manufacturer, override wins
// when set.
func DetectVendor(override, manufacturer string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(override))
	if name == "" {
		m := strings.ToLower(manufacturer)
		switch {
		case strings.HasPrefix(m, "dell"):
			name = VendorDell
		case strings.HasPrefix(m, "hp"), strings.HasPrefix(m, "hewlett"):
			name = VendorHPE
		default:
			return "", fmt.Errorf("unsupported manufacturer %q, set the vendor explicitly", manufacturer)
		}
	}

	switch name {
	case VendorDell, VendorHPE:
		return name, nil
	}
	return "", fmt.Errorf("unknown vendor %q", override)
}

func newVendor(c *Client, override, manufacturer string) (Vendor, error) {
	name, err := DetectVendor(override, manufacturer)
	if err != nil {
		return nil, err
	}
	if name == VendorDell {
		return &dell{c: c}, nil
	}
	return &hpe{c: c}, nil
}
