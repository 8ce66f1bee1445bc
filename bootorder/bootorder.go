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

// Package bootorder reorders a controller boot sequence so the primary disk boots
// first and the management NIC second.
package bootorder

const (
	// PrimaryDisk is the boot device name of the first hard disk list entry. It
	// matches both integrated and discrete RAID controllers.
	PrimaryDisk = "HardDisk.List.1-1"

	// BootSeq is the attribute key of the boot sequence in legacy BIOS boot mode
	BootSeq = "BootSeq"
	// UefiBootSeq is the attribute key of the boot sequence in UEFI boot mode
	UefiBootSeq = "UefiBootSeq"

	uefiBootMode = "Uefi"
)

// ManagementNICs are the integrated NIC ports wired to the 1Gbps management network.
var ManagementNICs = []string{"NIC.Integrated.1-1-1", "NIC.Integrated.1-3-1"}

// BootDevice is one entry of a boot sequence as reported by the controller.
type BootDevice struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Enabled bool   `json:"Enabled"`
	Index   int    `json:"Index"`
}

// Policy names the devices promoted to the front of the boot sequence.
type Policy struct {
	// Disk is promoted to the first slot.
	Disk string
	// NICs are candidates for the second slot, the first device in sequence order
	// whose name is in this list wins.
	NICs []string
}

// DefaultPolicy returns the policy used by Normalize.
func DefaultPolicy() Policy {
	nics := make([]string, len(ManagementNICs))
	copy(nics, ManagementNICs)
	return Policy{
		Disk: PrimaryDisk,
		NICs: nics,
	}
}

// SequenceKey returns the BIOS attribute holding the boot sequence for bootMode.
func SequenceKey(bootMode string) string {
	if bootMode == uefiBootMode {
		return UefiBootSeq
	}
	return BootSeq
}

// Normalize returns devices reordered with DefaultPolicy.
func Normalize(devices []BootDevice) []BootDevice {
	return NormalizeWith(devices, DefaultPolicy())
}

// NormalizeWith returns a new sequence with the policy disk first, the first
// matching policy NIC next and every other device after them in its original
// relative order. Index is rewritten to the new 0-based position. The input
// slice is not modified.
func NormalizeWith(devices []BootDevice, p Policy) []BootDevice {
	disk, nic := -1, -1
	for i, d := range devices {
		if disk < 0 && d.Name == p.Disk {
			disk = i
			continue
		}
		if nic < 0 && p.isNIC(d.Name) {
			nic = i
		}
	}

	out := make([]BootDevice, 0, len(devices))
	if disk >= 0 {
		out = append(out, devices[disk])
	}
	if nic >= 0 {
		out = append(out, devices[nic])
	}
	for i, d := range devices {
		if i == disk || i == nic {
			continue
		}
		out = append(out, d)
	}

	for i := range out {
		out[i].Index = i
	}
	return out
}

func (p Policy) isNIC(name string) bool {
	for _, n := range p.NICs {
		if n == name {
			return true
		}
	}
	return false
}
