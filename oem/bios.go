/*
 * Copyright 2024 Comcast Cable Communications Management, LLC
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

package oem

import (
	"encoding/json"

	"github.com/comcast/bmcconf/bootorder"
)

// /redfish/v1/Systems/XXXXX/Bios/

// Bios is the current BIOS configuration of a system
type Bios struct {
	Attributes      map[string]interface{} `json:"Attributes"`
	RedfishSettings RedfishSettings        `json:"@Redfish.Settings"`
	Actions         BiosActions            `json:"Actions"`
}

type BiosActions struct {
	ResetBios ActionTarget `json:"#Bios.ResetBios"`
}

// BiosSettings is the body patched to the BIOS pending settings object
type BiosSettings struct {
	Attributes map[string]interface{} `json:"Attributes"`
}

// /redfish/v1/Systems/System.Embedded.1/BootSources/

// BootSources is the Dell boot source inventory. Every attribute is a list of boot
// devices, BootSeq or UefiBootSeq holds the boot order for the active boot mode.
type BootSources struct {
	Attributes map[string]json.RawMessage `json:"Attributes"`
}

// Sequence decodes the boot devices stored under key. A missing key yields an
// empty sequence and ok false.
func (b BootSources) Sequence(key string) (devices []bootorder.BootDevice, ok bool, err error) {
	raw, ok := b.Attributes[key]
	if !ok {
		return nil, false, nil
	}
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, true, err
	}
	return devices, true, nil
}

// BootSourcesSettings is the body patched to BootSources/Settings
type BootSourcesSettings struct {
	Attributes map[string][]bootorder.BootDevice `json:"Attributes"`
}

// NewBootSourcesSettings wraps devices under key.
func NewBootSourcesSettings(key string, devices []bootorder.BootDevice) BootSourcesSettings {
	return BootSourcesSettings{
		Attributes: map[string][]bootorder.BootDevice{key: devices},
	}
}
