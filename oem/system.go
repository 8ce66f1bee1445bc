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

// /redfish/v1/Systems/XXXXX

// System contains the fields of the computer system the vendor drivers read
// beyond what the redfish library models
type System struct {
	ID           string `json:"Id"`
	Manufacturer string `json:"Manufacturer"`
	Model        string `json:"Model"`
	PowerState   string `json:"PowerState"`
	AssetTag     string `json:"AssetTag"`
	Bios         Link   `json:"Bios"`
	Oem          OemSys `json:"Oem"`
}

type OemSys struct {
	Hpe *HpeSys `json:"Hpe,omitempty"`
	Hp  *HpeSys `json:"Hp,omitempty"`
}

// HpeSys holds the iLO specific system fields, iLO 4 (Gen9) reports them under
// "Hp" and iLO 5+ under "Hpe"
type HpeSys struct {
	PostState string `json:"PostState"`
}

// PostState returns the HPE POST state and whether the system reported one.
func (s System) PostState() (string, bool) {
	switch {
	case s.Oem.Hpe != nil && s.Oem.Hpe.PostState != "":
		return s.Oem.Hpe.PostState, true
	case s.Oem.Hp != nil && s.Oem.Hp.PostState != "":
		return s.Oem.Hp.PostState, true
	}
	return "", false
}

// IsGen9 reports whether the system is an iLO 4 era HPE system, which only
// populates the legacy "Hp" OEM section.
func (s System) IsGen9() bool {
	return s.Oem.Hpe == nil && s.Oem.Hp != nil
}

// AssetTagPatch is the body used to set the system asset tag
type AssetTagPatch struct {
	AssetTag string `json:"AssetTag"`
}
