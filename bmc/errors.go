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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/comcast/bmcconf/common"
	rfcommon "github.com/stmcginnis/gofish/common"
)

// ErrUnsupported is returned when the vendor driver has no way to perform an operation.
var ErrUnsupported = errors.New("operation not supported by this controller")

// ExtendedInfo is one entry of a redfish @Message.ExtendedInfo list
type ExtendedInfo struct {
	MessageID string
	Message   string
}

// ControllerError is a non successful response from a management controller
// with its decoded redfish error body.
type ControllerError struct {
	Method     string
	URI        string
	StatusCode int
	Code       string
	Message    string
	Extended   []ExtendedInfo
}

func (e *ControllerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s returned %d", e.Method, e.URI, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	for _, info := range e.Extended {
		fmt.Fprintf(&b, "; %s: %s", info.MessageID, info.Message)
	}
	return b.String()
}

// wrapError turns a gofish error into a ControllerError when the controller answered,
// authentication failures become common.ErrInvalidCredential.
func wrapError(method, uri string, err error) error {
	if err == nil {
		return nil
	}

	var rfErr *rfcommon.Error
	if !errors.As(err, &rfErr) {
		return fmt.Errorf("%s %s: %w", method, uri, err)
	}

	if rfErr.HTTPReturnedStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, uri, common.ErrInvalidCredential)
	}

	ce := &ControllerError{
		Method:     method,
		URI:        uri,
		StatusCode: rfErr.HTTPReturnedStatusCode,
		Code:       rfErr.Code,
		Message:    rfErr.Message,
	}
	for _, info := range rfErr.ExtendedInfos {
		ce.Extended = append(ce.Extended, ExtendedInfo{MessageID: info.MessageID, Message: info.Message})
	}
	return ce
}
