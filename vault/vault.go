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

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/approle"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedIn = errors.New("vault client is not logged in")
)

type Parameters struct {
	// connection and credential parameters
	Address         string
	ApproleRoleID   string
	ApproleSecretID string
	CACertBytes     []byte
}

// the locations / field names of kv secrets
type SecretProperties struct {
	MountPath     string
	Path          string
	UserField     string
	PasswordField string
	SecretName    string
}

type Vault struct {
	mu         sync.RWMutex
	client     *vault.Client
	Parameters Parameters
	isLoggedIn bool

	stopWatcher chan struct{}
	watcherDone chan struct{}
}

// NewVaultAppRoleClient returns a client for the vault instance in parameters. Login
// must be called before secrets can be read.
func NewVaultAppRoleClient(ctx context.Context, parameters Parameters) (*Vault, error) {
	config := vault.DefaultConfig()
	config.Address = parameters.Address
	if len(parameters.CACertBytes) > 0 {
		if err := config.ConfigureTLS(&vault.TLSConfig{
			CACertBytes: parameters.CACertBytes,
		}); err != nil {
			return nil, fmt.Errorf("unable to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize vault client: %w", err)
	}

	return &Vault{
		client:     client,
		Parameters: parameters,
	}, nil
}

// Login authenticates with the AppRole role and secret IDs and starts renewing the
// resulting token in the background until Close is called.
func (v *Vault) Login(ctx context.Context) error {
	approleSecretID := &approle.SecretID{
		FromString: v.Parameters.ApproleSecretID,
	}

	appRoleAuth, err := approle.NewAppRoleAuth(
		v.Parameters.ApproleRoleID,
		approleSecretID,
	)
	if err != nil {
		return fmt.Errorf("unable to initialize approle authentication method: %w", err)
	}

	authInfo, err := v.client.Auth().Login(ctx, appRoleAuth)
	if err != nil {
		return fmt.Errorf("unable to login using approle auth method: %w", err)
	}
	if authInfo == nil {
		return fmt.Errorf("no auth info was returned after login")
	}

	v.setLoggedIn(true)

	if authInfo.Auth != nil && authInfo.Auth.Renewable {
		if err := v.startWatcher(authInfo); err != nil {
			zap.L().Warn("vault token will not be renewed", zap.Error(err))
		}
	}

	return nil
}

// GetKVSecret fetches the latest version of a secret from a kv-v1 or kv-v2 mount. The
// secret path is built from props, falling back to secret as the final element.
func (v *Vault) GetKVSecret(ctx context.Context, props *SecretProperties, secret string) (*vault.KVSecret, error) {
	var kvSecret *vault.KVSecret
	var err error

	if !v.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}

	secretPath := SecretPath(props, secret)

	if props.MountPath != "kv2" {
		kvSecret, err = v.client.KVv1(props.MountPath).Get(ctx, secretPath)
	} else {
		kvSecret, err = v.client.KVv2(props.MountPath).Get(ctx, secretPath)
	}

	if err != nil {
		return kvSecret, fmt.Errorf("unable to read secret: %w", err)
	}

	return kvSecret, nil
}

// SecretPath joins the profile path with the profile secret name, or with secret when
// the profile does not pin one.
func SecretPath(props *SecretProperties, secret string) string {
	name := secret
	if props.SecretName != "" {
		name = props.SecretName
	}
	if props.Path != "" {
		return fmt.Sprintf("%s/%s", props.Path, name)
	}
	return name
}

func (v *Vault) IsLoggedIn() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isLoggedIn
}

func (v *Vault) setLoggedIn(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isLoggedIn = b
}

// Close stops token renewal and revokes the token.
func (v *Vault) Close(ctx context.Context) {
	v.mu.Lock()
	stop, done := v.stopWatcher, v.watcherDone
	v.stopWatcher, v.watcherDone = nil, nil
	v.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	if !v.IsLoggedIn() {
		return
	}

	if err := v.client.Auth().Token().RevokeSelfWithContext(ctx, v.client.Token()); err != nil {
		zap.L().Error("unable to revoke vault token", zap.Error(err))
	}
	v.setLoggedIn(false)
}

func (v *Vault) startWatcher(token *vault.Secret) error {
	watcher, err := v.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret:    token,
		Increment: token.LeaseDuration / 2,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize new lifetime watcher for renewing auth token: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	v.mu.Lock()
	v.stopWatcher, v.watcherDone = stop, done
	v.mu.Unlock()

	go watcher.Start()
	go func() {
		log := zap.L()
		defer close(done)
		defer watcher.Stop()

		for {
			select {
			case <-stop:
				return
			// DoneCh returns once renewal fails or the token reached its max TTL
			case err := <-watcher.DoneCh():
				if err != nil {
					log.Error("failed to renew vault token", zap.Error(err))
				} else {
					log.Info("vault token can no longer be renewed")
				}
				return
			case renewal := <-watcher.RenewCh():
				v.client.SetToken(renewal.Secret.Auth.ClientToken)
				log.Debug("successfully renewed vault token")
			}
		}
	}()

	return nil
}
