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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/comcast/bmcconf/bootorder"
	"github.com/comcast/bmcconf/common"
	"github.com/comcast/bmcconf/config"
	"github.com/comcast/bmcconf/logger"
	"github.com/comcast/bmcconf/oem"
	"github.com/siderolabs/go-retry/retry"
	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/redfish"
	"go.uber.org/zap"
)

// PostState is the power-on self-test progress of a system.
type PostState string

const (
	PostStatePowerOff                PostState = "PowerOff"
	PostStateInPost                  PostState = "InPost"
	PostStateInPostDiscoveryComplete PostState = "InPostDiscoveryComplete"
	PostStateFinishedPost            PostState = "FinishedPost"
	PostStateUnknown                 PostState = "Unknown"
)

// Power states reported by ComputerSystem.PowerState
const (
	PowerStateOn  = string(redfish.OnPowerState)
	PowerStateOff = string(redfish.OffPowerState)
)

const retryMax = 2

// Client is an authenticated session against one management controller.
type Client struct {
	Host string

	api    *gofish.APIClient
	system *redfish.ComputerSystem
	info   oem.System
	vendor Vendor
	log    *zap.Logger

	systemURI string
}

// Connect opens a session on the controller of target and discovers its system and
// vendor. The caller must Close the returned client.
func Connect(ctx context.Context, target config.Target, cred *common.Credential, cfg *config.Config) (*Client, error) {
	endpoint := target.Host
	if !strings.Contains(endpoint, "://") {
		endpoint = cfg.BMCScheme + "://" + endpoint
	}

	log := logger.FromContext(ctx).With(zap.String("target", target.Host))

	retryClient := NewHTTPClient(ctx, HTTPOptions{
		Timeout:            cfg.BMCTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RetryMax:           retryMax,
	})

	api, err := gofish.ConnectContext(ctx, gofish.ClientConfig{
		Endpoint:   endpoint,
		Username:   cred.User,
		Password:   cred.Pass,
		BasicAuth:  cfg.BasicAuth,
		HTTPClient: StandardClient(retryClient),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target.Host, wrapError(http.MethodPost, endpoint, err))
	}

	c := &Client{
		Host: target.Host,
		api:  api,
		log:  log,
	}

	if err := c.discover(cfg.Vendor); err != nil {
		c.Close()
		return nil, fmt.Errorf("discovering %s: %w", target.Host, err)
	}

	log.Debug("connected to controller",
		zap.String("vendor", c.vendor.Name()),
		zap.String("manufacturer", c.info.Manufacturer),
		zap.String("model", c.info.Model),
		zap.String("system", c.systemURI))

	return c, nil
}

func (c *Client) discover(vendorOverride string) error {
	systems, err := c.api.Service.Systems()
	if err != nil {
		return wrapError(http.MethodGet, "systems", err)
	}
	if len(systems) == 0 {
		return errors.New("controller reports no computer systems")
	}

	c.system = systems[0]
	c.systemURI = c.system.ODataID

	if err := c.getJSON(c.systemURI, &c.info); err != nil {
		return err
	}

	c.vendor, err = newVendor(c, vendorOverride, c.info.Manufacturer)
	return err
}

// Close deletes the session. Failures are logged and otherwise ignored.
func (c *Client) Close() {
	if c == nil || c.api == nil {
		return
	}
	c.api.Logout()
	c.log.Debug("session closed")
}

// Vendor returns the driver selected for the controller.
func (c *Client) Vendor() Vendor {
	return c.vendor
}

// System returns the system as read when the session was opened.
func (c *Client) System() oem.System {
	return c.info
}

func (c *Client) getJSON(uri string, v interface{}) error {
	resp, err := c.api.Get(uri)
	if err != nil {
		return wrapError(http.MethodGet, uri, err)
	}
	defer common.EmptyAndCloseBody(resp)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", uri, err)
	}
	return nil
}

func (c *Client) patch(uri string, payload interface{}) error {
	resp, err := c.api.Patch(uri, payload)
	if err != nil {
		return wrapError(http.MethodPatch, uri, err)
	}
	common.EmptyAndCloseBody(resp)
	return nil
}

// patchIfMatch reads the resource first and sends its ETag back with the PATCH so a
// concurrent change on the controller is not overwritten.
func (c *Client) patchIfMatch(uri string, payload interface{}) error {
	resp, err := c.api.Get(uri)
	if err != nil {
		return wrapError(http.MethodGet, uri, err)
	}
	etag := resp.Header.Get("ETag")
	common.EmptyAndCloseBody(resp)

	if etag == "" {
		return c.patch(uri, payload)
	}

	resp, err = c.api.PatchWithHeaders(uri, payload, map[string]string{"If-Match": etag})
	if err != nil {
		return wrapError(http.MethodPatch, uri, err)
	}
	common.EmptyAndCloseBody(resp)
	return nil
}

// post returns the response with its body already drained, only headers are usable.
func (c *Client) post(uri string, payload interface{}) (*http.Response, error) {
	resp, err := c.api.Post(uri, payload)
	if err != nil {
		return nil, wrapError(http.MethodPost, uri, err)
	}
	common.EmptyAndCloseBody(resp)
	return resp, nil
}

func (c *Client) readSystem(ctx context.Context) (oem.System, error) {
	var sys oem.System
	if err := ctx.Err(); err != nil {
		return sys, err
	}
	err := c.getJSON(c.systemURI, &sys)
	return sys, err
}

// PowerState returns the current power state of the system.
func (c *Client) PowerState(ctx context.Context) (string, error) {
	sys, err := c.readSystem(ctx)
	if err != nil {
		return "", err
	}
	return sys.PowerState, nil
}

// Reset sends a ComputerSystem.Reset action of the given type.
func (c *Client) Reset(ctx context.Context, resetType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("resetting system", zap.String("reset_type", resetType))
	return c.vendor.Reset(ctx, redfish.ResetType(resetType))
}

func (c *Client) resetSystem(resetType redfish.ResetType) error {
	if err := c.system.Reset(resetType); err != nil {
		return wrapError(http.MethodPost, c.systemURI+" reset "+string(resetType), err)
	}
	return nil
}

// poll calls check every interval until it returns nil, timeout elapses or ctx is
// done. Errors other than invalid credentials are retried.
func poll(ctx context.Context, timeout, interval time.Duration, check func(ctx context.Context) error) error {
	return retry.Constant(timeout, retry.WithUnits(interval)).RetryWithContext(ctx, func(ctx context.Context) error {
		err := check(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrInvalidCredential) || errors.Is(err, context.Canceled) {
			return err
		}
		return retry.ExpectedError(err)
	})
}

// WaitPowerState polls the power state until it equals want.
func (c *Client) WaitPowerState(ctx context.Context, want string, timeout, interval time.Duration) error {
	err := poll(ctx, timeout, interval, func(ctx context.Context) error {
		state, err := c.PowerState(ctx)
		if err != nil {
			return err
		}
		if state != want {
			return fmt.Errorf("power state is %s, waiting for %s", state, want)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("waiting for power state %s: %w", want, err)
	}
	return nil
}

// PostState returns the POST progress of the system.
func (c *Client) PostState(ctx context.Context) (PostState, error) {
	sys, err := c.readSystem(ctx)
	if err != nil {
		return PostStateUnknown, err
	}
	return c.vendor.PostState(sys), nil
}

// WaitForPost polls until the system finished POST.
func (c *Client) WaitForPost(ctx context.Context, timeout, interval time.Duration) error {
	start := time.Now()
	err := poll(ctx, timeout, interval, func(ctx context.Context) error {
		state, err := c.PostState(ctx)
		if err != nil {
			return err
		}
		if state == PostStateFinishedPost || state == PostStateInPostDiscoveryComplete {
			return nil
		}
		remaining := timeout - time.Since(start)
		c.log.Debug("waiting for POST",
			zap.String("post_state", string(state)),
			zap.Int("seconds_remaining", int(remaining.Seconds())))
		return fmt.Errorf("post state is %s", state)
	})
	if err != nil {
		return fmt.Errorf("server did not finish POST within %s, power it off manually or check the console: %w", timeout, err)
	}
	return nil
}

func (c *Client) biosURI() (string, error) {
	if c.info.Bios.URL == "" {
		return "", fmt.Errorf("system %s has no bios resource", c.systemURI)
	}
	return c.info.Bios.URL, nil
}

func (c *Client) readBios() (oem.Bios, string, error) {
	var bios oem.Bios
	uri, err := c.biosURI()
	if err != nil {
		return bios, "", err
	}
	err = c.getJSON(uri, &bios)
	return bios, uri, err
}

// biosSettingsURI returns the pending settings object BIOS changes are written to.
func (c *Client) biosSettingsURI() (string, error) {
	bios, uri, err := c.readBios()
	if err != nil {
		return "", err
	}
	if s := bios.RedfishSettings.SettingsObject.URL; s != "" {
		return s, nil
	}
	return strings.TrimSuffix(uri, "/") + "/Settings", nil
}

// BiosAttributes returns the current BIOS attributes.
func (c *Client) BiosAttributes(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uri, err := c.biosURI()
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := c.getJSON(uri, &raw); err != nil {
		return nil, err
	}

	if attrs, ok := raw["Attributes"].(map[string]interface{}); ok {
		return attrs, nil
	}

	// iLO 4 lists the attributes at the top level of the resource
	attrs := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "@") || strings.HasPrefix(k, "Oem") || k == "Links" || k == "Actions" {
			continue
		}
		attrs[k] = v
	}
	return attrs, nil
}

// BootMode returns the BootMode BIOS attribute, Bios or Uefi.
func (c *Client) BootMode(ctx context.Context) (string, error) {
	attrs, err := c.BiosAttributes(ctx)
	if err != nil {
		return "", err
	}
	mode, _ := attrs["BootMode"].(string)
	return mode, nil
}

// SetBiosAttributes writes attrs to the BIOS pending settings.
func (c *Client) SetBiosAttributes(ctx context.Context, attrs map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("setting bios attributes", zap.Int("count", len(attrs)))
	return c.vendor.SetBiosAttributes(ctx, attrs)
}

// ResetBiosDefaults restores the factory BIOS configuration on next boot.
func (c *Client) ResetBiosDefaults(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("resetting bios to defaults")
	return c.vendor.ResetBiosDefaults(ctx)
}

// CommitBiosSettings schedules the pending BIOS settings and returns the job created
// for them, an empty id when the controller applies them on next reboot by itself.
func (c *Client) CommitBiosSettings(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.vendor.CommitBiosSettings(ctx)
}

// WaitJob polls jobID until it completes. An empty id returns immediately.
func (c *Client) WaitJob(ctx context.Context, jobID string, timeout, interval time.Duration) error {
	if jobID == "" {
		return nil
	}
	return c.vendor.WaitJob(ctx, jobID, timeout, interval)
}

// BootSequence returns the active boot sequence attribute and its devices.
func (c *Client) BootSequence(ctx context.Context) (string, []bootorder.BootDevice, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return c.vendor.BootSequence(ctx)
}

// SetBootSequence writes devices as the pending boot sequence under key.
func (c *Client) SetBootSequence(ctx context.Context, key string, devices []bootorder.BootDevice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.vendor.SetBootSequence(ctx, key, devices)
}

// OneGbpsNIC returns the lowest sorted ethernet interface running at 1 Gbps, the
// first management NIC name when there is none.
func (c *Client) OneGbpsNIC(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	nics, err := c.system.EthernetInterfaces()
	if err != nil {
		return "", wrapError(http.MethodGet, c.systemURI+" ethernet interfaces", err)
	}

	var ids []string
	for _, nic := range nics {
		if nic.SpeedMbps == 1000 {
			ids = append(ids, nic.ID)
		}
	}

	if len(ids) == 0 {
		return bootorder.ManagementNICs[0], nil
	}
	sort.Strings(ids)
	return ids[0], nil
}

// SetAssetTag sets the system asset tag.
func (c *Client) SetAssetTag(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("setting asset tag", zap.String("asset_tag", tag))
	return c.patch(c.systemURI, oem.AssetTagPatch{AssetTag: tag})
}

// SetAccountPassword changes the password of the controller account named userName.
func (c *Client) SetAccountPassword(ctx context.Context, userName, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	as, err := c.api.Service.AccountService()
	if err != nil {
		return wrapError(http.MethodGet, "account service", err)
	}

	accounts, err := as.Accounts()
	if err != nil {
		return wrapError(http.MethodGet, "accounts", err)
	}

	for _, acct := range accounts {
		if acct.UserName != userName {
			continue
		}
		c.log.Info("setting account password", zap.String("account", acct.ODataID), zap.String("user", userName))
		return c.patch(acct.ODataID, oem.PasswordPatch{Password: password})
	}

	return fmt.Errorf("no account named %q on %s", userName, c.Host)
}

// DecorateAttributes adds the vendor specific identity attributes to attrs.
func (c *Client) DecorateAttributes(attrs map[string]interface{}, assetTag, serverName string) {
	c.vendor.DecorateAttributes(attrs, assetTag, serverName)
}
