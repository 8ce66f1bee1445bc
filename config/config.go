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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings every controller operation runs with. It is built once
// from command line flags and handed to each operation explicitly.
type Config struct {
	BMCScheme          string
	BMCTimeout         time.Duration
	InsecureSkipVerify bool
	// BasicAuth sends the credentials with every request instead of opening a session
	BasicAuth bool
	User      string
	Pass      string
	// Vendor forces a vendor driver instead of detecting it from the system manufacturer
	Vendor string

	Concurrency  int
	PollInterval time.Duration
	PostTimeout  time.Duration
	PowerTimeout time.Duration
	JobTimeout   time.Duration

	// ServerNameFormat is a fmt format receiving the asset tag, used for the HPE
	// ServerName BIOS attribute
	ServerNameFormat string
}

// Default returns a Config populated with the values used when no flag overrides them.
func Default() *Config {
	return &Config{
		BMCScheme:        "https",
		BMCTimeout:       60 * time.Second,
		Concurrency:      1,
		PollInterval:     time.Second,
		PostTimeout:      10 * time.Minute,
		PowerTimeout:     10 * time.Minute,
		JobTimeout:       30 * time.Minute,
		ServerNameFormat: "mgmt-%s",
	}
}

// ServerName renders ServerNameFormat for assetTag.
func (c *Config) ServerName(assetTag string) string {
	if c.ServerNameFormat == "" || assetTag == "" {
		return ""
	}
	return fmt.Sprintf(c.ServerNameFormat, assetTag)
}

// Target is one management controller to operate on.
type Target struct {
	Host              string `yaml:"host" json:"host"`
	AssetTag          string `yaml:"asset_tag" json:"asset_tag"`
	CredentialProfile string `yaml:"credential_profile" json:"credential_profile"`
}

type inventory struct {
	Targets []Target `yaml:"targets"`
}

// LoadAttributes reads a BIOS attribute file. JSON and YAML are both accepted and the
// document must be a mapping of attribute name to value.
func LoadAttributes(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attribute file %s: %w", path, err)
	}

	attrs := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &attrs); err != nil {
		return nil, fmt.Errorf("parsing attribute file %s: %w", path, err)
	}

	if len(attrs) == 0 {
		return nil, fmt.Errorf("attribute file %s contains no attributes", path)
	}

	return attrs, nil
}

// LoadInventory reads the list of targets from a YAML or JSON inventory file.
func LoadInventory(path string) ([]Target, error) {
	var inv inventory

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", path, err)
	}

	for i, t := range inv.Targets {
		if t.Host == "" {
			return nil, fmt.Errorf("inventory %s: target #%d has no host", path, i)
		}
	}

	return inv.Targets, nil
}
