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

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/comcast/bmcconf/config"
)

// envFileArg finds --env-file among args. The file has to be loaded before kingpin
// reads the environment, so it cannot wait for the parsed flag.
func envFileArg(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return v
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("BMCCONF_ENV_FILE")
}

// buildTargets merges the --target hosts and the inventory file. A host listed in
// both keeps the inventory entry.
func buildTargets(hosts []string, assetTag, profile, inventory string) ([]config.Target, error) {
	if len(hosts) > 1 && assetTag != "" {
		return nil, errors.New("--asset-tag needs a single --target, use an inventory for several hosts")
	}

	var targets []config.Target
	seen := make(map[string]bool)

	if inventory != "" {
		inv, err := config.LoadInventory(inventory)
		if err != nil {
			return nil, err
		}
		for _, t := range inv {
			if seen[t.Host] {
				return nil, fmt.Errorf("inventory %s lists %s twice", inventory, t.Host)
			}
			seen[t.Host] = true
			targets = append(targets, t)
		}
	}

	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		targets = append(targets, config.Target{
			Host:              h,
			AssetTag:          assetTag,
			CredentialProfile: profile,
		})
	}

	if len(targets) == 0 {
		return nil, errors.New("set --target or --inventory")
	}

	return targets, nil
}
