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

// Link is a reference to another redfish resource
type Link struct {
	URL string `json:"@odata.id"`
}

// ActionTarget is the entry of an "Actions" object
type ActionTarget struct {
	Target string `json:"target"`
}

// RedfishSettings is the @Redfish.Settings annotation pointing at the pending
// settings object of a resource
type RedfishSettings struct {
	SettingsObject Link `json:"SettingsObject"`
}
