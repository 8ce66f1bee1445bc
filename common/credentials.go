/*
 * Copyright 2023 Comcast Cable Communications Management, LLC
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

package common

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	cm_vault "github.com/comcast/bmcconf/vault"
	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"
)

// SecretReader reads a kv secret for a credential profile.
type SecretReader interface {
	GetKVSecret(ctx context.Context, props *cm_vault.SecretProperties, secret string) (*vaultapi.KVSecret, error)
}

type Credential struct {
	User string
	Pass string
}

// CredentialProfile locates a BMC credential in the secrets backend.
type CredentialProfile struct {
	Name          string `yaml:"name"`
	MountPath     string `yaml:"mountPath"`
	Path          string `yaml:"path"`
	UserField     string `yaml:"userField"`
	PasswordField string `yaml:"passwordField"`
	SecretName    string `yaml:"secretName"`
}

// CredentialProfiles is a kingpin flag value holding profiles by name. The flag takes
// a YAML or JSON document with a top level "profiles" list.
type CredentialProfiles map[string]CredentialProfile

func (p CredentialProfiles) Set(value string) error {
	var doc struct {
		Profiles []CredentialProfile `yaml:"profiles"`
	}

	if err := yaml.Unmarshal([]byte(value), &doc); err != nil {
		return fmt.Errorf("unable to parse credential profiles: %w", err)
	}

	for _, prof := range doc.Profiles {
		if prof.Name == "" {
			return fmt.Errorf("credential profile is missing a name")
		}
		if prof.MountPath == "" {
			return fmt.Errorf("credential profile %q is missing mountPath", prof.Name)
		}
		if prof.UserField == "" {
			prof.UserField = "user"
		}
		if prof.PasswordField == "" {
			prof.PasswordField = "password"
		}
		p[prof.Name] = prof
	}

	return nil
}

func (p CredentialProfiles) String() string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// CredentialProf registers CredentialProfiles as the value of a kingpin flag.
func CredentialProf(s kingpin.Settings) CredentialProfiles {
	target := make(CredentialProfiles)
	s.SetValue(target)
	return target
}

// Credentials hands out the user and password to log in to each host with. Hosts
// using a credential profile are looked up in the secrets backend once and cached.
type Credentials struct {
	mu       sync.Mutex
	creds    map[string]*Credential
	static   Credential
	profiles CredentialProfiles
	secrets  SecretReader
}

// NewCredentials returns a resolver falling back to static when no profile applies.
// secrets may be nil when no secrets backend is configured.
func NewCredentials(static Credential, profiles CredentialProfiles, secrets SecretReader) *Credentials {
	return &Credentials{
		creds:    make(map[string]*Credential),
		static:   static,
		profiles: profiles,
		secrets:  secrets,
	}
}

// Resolve returns the credential for host. An empty profile selects the static
// credential.
func (c *Credentials) Resolve(ctx context.Context, profile, host string) (*Credential, error) {
	if profile == "" {
		if c.static.User == "" {
			return nil, fmt.Errorf("no credential profile set for %s and no static username configured", host)
		}
		cred := c.static
		return &cred, nil
	}

	c.mu.Lock()
	cred, ok := c.creds[host]
	c.mu.Unlock()
	if ok {
		return cred, nil
	}

	cred, err := c.Lookup(ctx, profile, host)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.creds[host] = cred
	c.mu.Unlock()

	return cred, nil
}

// Forget drops the cached credential of host, e.g. after it was rotated.
func (c *Credentials) Forget(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.creds, host)
}

// Lookup reads the credential of host for profile from the secrets backend without
// consulting the cache.
func (c *Credentials) Lookup(ctx context.Context, profile, host string) (*Credential, error) {
	var ok bool
	var user, pass string

	log := zap.L()

	prof, found := c.profiles[profile]
	if !found {
		return nil, fmt.Errorf("unknown credential profile %q", profile)
	}

	if c.secrets == nil {
		return nil, fmt.Errorf("credential profile %q needs vault but no vault client is configured", profile)
	}

	secret, err := c.secrets.GetKVSecret(ctx, &cm_vault.SecretProperties{
		MountPath:     prof.MountPath,
		Path:          prof.Path,
		UserField:     prof.UserField,
		PasswordField: prof.PasswordField,
		SecretName:    prof.SecretName,
	}, host)
	if err != nil {
		log.Error("issue retrieving credentials from vault using target "+host, zap.Error(err), zap.String("credential_profile", profile))
		return nil, fmt.Errorf("issue retrieving credentials from vault using target %s: %w", host, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("the secret retrieved from vault using target %s is empty", host)
	}

	if user, ok = secret.Data[prof.UserField].(string); !ok {
		return nil, fmt.Errorf("the secret retrieved from vault using target %s is missing the %q field", host, prof.UserField)
	}

	if pass, ok = secret.Data[prof.PasswordField].(string); !ok {
		return nil, fmt.Errorf("the secret retrieved from vault using target %s is missing the %q field", host, prof.PasswordField)
	}

	return &Credential{
		User: user,
		Pass: pass,
	}, nil
}
