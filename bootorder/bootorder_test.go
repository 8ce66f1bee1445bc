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

package bootorder

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dev(name string, index int) BootDevice {
	return BootDevice{
		ID:      "BIOS.Setup.1-1#BootSeq#" + name,
		Name:    name,
		Enabled: true,
		Index:   index,
	}
}

func names(devices []BootDevice) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Name)
	}
	return out
}

func Test_Normalize(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name     string
		input    []BootDevice
		expected []string
	}{
		{
			name:     "example from a R640",
			input:    []BootDevice{dev("RAID.Integrated.1-1", 0), dev("HardDisk.List.1-1", 1), dev("NIC.Integrated.1-1-1", 2)},
			expected: []string{"HardDisk.List.1-1", "NIC.Integrated.1-1-1", "RAID.Integrated.1-1"},
		},
		{
			name:     "empty",
			input:    []BootDevice{},
			expected: []string{},
		},
		{
			name:     "no special devices",
			input:    []BootDevice{dev("Optical.SATAEmbedded.J-1", 0), dev("RAID.Integrated.1-1", 1)},
			expected: []string{"Optical.SATAEmbedded.J-1", "RAID.Integrated.1-1"},
		},
		{
			name:     "nic without disk takes first slot",
			input:    []BootDevice{dev("RAID.Integrated.1-1", 0), dev("NIC.Integrated.1-3-1", 1)},
			expected: []string{"NIC.Integrated.1-3-1", "RAID.Integrated.1-1"},
		},
		{
			name: "first matching nic wins",
			input: []BootDevice{
				dev("NIC.Integrated.1-3-1", 0),
				dev("NIC.Slot.2-1-1", 1),
				dev("NIC.Integrated.1-1-1", 2),
				dev("HardDisk.List.1-1", 3),
			},
			expected: []string{"HardDisk.List.1-1", "NIC.Integrated.1-3-1", "NIC.Slot.2-1-1", "NIC.Integrated.1-1-1"},
		},
		{
			name:     "already normalized",
			input:    []BootDevice{dev("HardDisk.List.1-1", 0), dev("NIC.Integrated.1-1-1", 1), dev("RAID.Integrated.1-1", 2)},
			expected: []string{"HardDisk.List.1-1", "NIC.Integrated.1-1-1", "RAID.Integrated.1-1"},
		},
		{
			name:     "malformed entries pass through",
			input:    []BootDevice{{Index: 7}, dev("HardDisk.List.1-1", 3)},
			expected: []string{"HardDisk.List.1-1", ""},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Normalize(tc.input)
			assert.Equal(tc.expected, names(out))
			for i, d := range out {
				assert.Equal(i, d.Index)
			}
		})
	}
}

func Test_Normalize_DoesNotMutateInput(t *testing.T) {
	input := []BootDevice{dev("RAID.Integrated.1-1", 0), dev("HardDisk.List.1-1", 1)}
	Normalize(input)
	assert.Equal(t, []string{"RAID.Integrated.1-1", "HardDisk.List.1-1"}, names(input))
	assert.Equal(t, 1, input[1].Index)
}

func Test_NormalizeWith_CustomPolicy(t *testing.T) {
	input := []BootDevice{dev("NIC.Integrated.1-1-1", 0), dev("NIC.Slot.3-1-1", 1), dev("HardDisk.List.1-1", 2)}
	out := NormalizeWith(input, Policy{Disk: PrimaryDisk, NICs: []string{"NIC.Slot.3-1-1"}})
	assert.Equal(t, []string{"HardDisk.List.1-1", "NIC.Slot.3-1-1", "NIC.Integrated.1-1-1"}, names(out))
}

func Test_SequenceKey(t *testing.T) {
	assert.Equal(t, UefiBootSeq, SequenceKey("Uefi"))
	assert.Equal(t, BootSeq, SequenceKey("Bios"))
	assert.Equal(t, BootSeq, SequenceKey(""))
}

var pickNames = []string{
	"HardDisk.List.1-1",
	"NIC.Integrated.1-1-1",
	"NIC.Integrated.1-3-1",
	"NIC.Integrated.1-2-1",
	"RAID.Integrated.1-1",
	"Optical.SATAEmbedded.J-1",
	"Unknown.Unknown.1-1",
}

// randomSequence builds a sequence with at most one primary disk, matching what
// controllers report.
func randomSequence(r *rand.Rand) []BootDevice {
	n := r.Intn(8)
	out := make([]BootDevice, 0, n)
	haveDisk := false
	for i := 0; i < n; i++ {
		name := pickNames[r.Intn(len(pickNames))]
		if name == PrimaryDisk {
			if haveDisk {
				name = "HardDisk.List.1-2"
			}
			haveDisk = true
		}
		out = append(out, BootDevice{
			ID:      fmt.Sprintf("BIOS.Setup.1-1#BootSeq#%s#%d", name, i),
			Name:    name,
			Enabled: r.Intn(2) == 0,
			Index:   r.Intn(100),
		})
	}
	return out
}

func Test_Normalize_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		input := randomSequence(r)
		out := Normalize(input)

		// permutation of (id, name, enabled)
		type key struct {
			id, name string
			enabled  bool
		}
		counts := map[key]int{}
		for _, d := range input {
			counts[key{d.ID, d.Name, d.Enabled}]++
		}
		for _, d := range out {
			counts[key{d.ID, d.Name, d.Enabled}]--
		}
		for k, c := range counts {
			assert.Zero(t, c, "device %v count mismatch", k)
		}
		assert.Len(t, out, len(input))

		promoted := map[string]bool{}
		diskIdx, nicIdx := -1, -1
		for j, d := range out {
			assert.Equal(t, j, d.Index)
			if d.Name == PrimaryDisk {
				diskIdx = j
				promoted[d.ID] = true
			}
		}
		for _, d := range input {
			if d.Name == ManagementNICs[0] || d.Name == ManagementNICs[1] {
				for j, o := range out {
					if o.ID == d.ID {
						nicIdx = j
					}
				}
				promoted[d.ID] = true
				break
			}
		}

		if diskIdx >= 0 {
			assert.Equal(t, 0, diskIdx)
		}
		if nicIdx >= 0 {
			if diskIdx >= 0 {
				assert.Equal(t, 1, nicIdx)
			} else {
				assert.Equal(t, 0, nicIdx)
			}
		}

		// relative order of the rest is preserved
		var restIn, restOut []string
		for _, d := range input {
			if !promoted[d.ID] {
				restIn = append(restIn, d.ID)
			}
		}
		for _, d := range out {
			if !promoted[d.ID] {
				restOut = append(restOut, d.ID)
			}
		}
		assert.Equal(t, restIn, restOut)

		// idempotent
		assert.Equal(t, out, Normalize(out))
	}
}
