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
	"os"
	"path/filepath"
	"testing"

	"github.com/comcast/bmcconf/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_envFileArg(t *testing.T) {
	t.Setenv("BMCCONF_ENV_FILE", "")

	assert.Equal(t, "a.env", envFileArg([]string{"power", "--env-file=a.env"}))
	assert.Equal(t, "b.env", envFileArg([]string{"--env-file", "b.env", "power"}))
	assert.Equal(t, "", envFileArg([]string{"power", "--", "--env-file=c.env"}))
	assert.Equal(t, "", envFileArg([]string{"power", "--env-file"}))

	t.Setenv("BMCCONF_ENV_FILE", "d.env")
	assert.Equal(t, "d.env", envFileArg([]string{"power"}))
}

func Test_buildTargets(t *testing.T) {
	dir := t.TempDir()
	inv := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(inv, []byte(`
targets:
  - host: 10.0.0.1
    asset_tag: A1
    credential_profile: dell
  - host: 10.0.0.2
`), 0o600))

	targets, err := buildTargets([]string{"10.0.0.2", "10.0.0.3", " "}, "", "hpe", inv)
	require.NoError(t, err)
	assert.Equal(t, []config.Target{
		{Host: "10.0.0.1", AssetTag: "A1", CredentialProfile: "dell"},
		{Host: "10.0.0.2"},
		{Host: "10.0.0.3", CredentialProfile: "hpe"},
	}, targets)

	targets, err = buildTargets([]string{"10.0.0.9"}, "A9", "", "")
	require.NoError(t, err)
	assert.Equal(t, []config.Target{{Host: "10.0.0.9", AssetTag: "A9"}}, targets)

	_, err = buildTargets([]string{"10.0.0.1", "10.0.0.2"}, "A1", "", "")
	assert.Error(t, err)

	_, err = buildTargets(nil, "", "", "")
	assert.EqualError(t, err, "set --target or --inventory")

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("targets:\n  - host: h1\n  - host: h1\n"), 0o600))
	_, err = buildTargets(nil, "", "", dup)
	assert.ErrorContains(t, err, "lists h1 twice")
}
