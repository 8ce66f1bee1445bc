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

// /redfish/v1/Managers/iDRAC.Embedded.1/Jobs/

const (
	JobStateCompleted           = "Completed"
	JobStateCompletedWithErrors = "CompletedWithErrors"
	JobStateFailed              = "Failed"
)

// JobCreate is the body used to create a Dell configuration job
type JobCreate struct {
	TargetSettingsURI string `json:"TargetSettingsURI"`
}

// Job is a Dell lifecycle controller job
type Job struct {
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	JobState        string `json:"JobState"`
	JobType         string `json:"JobType"`
	Message         string `json:"Message"`
	MessageID       string `json:"MessageId"`
	PercentComplete int    `json:"PercentComplete"`
}

// Done reports whether the job reached a final state.
func (j Job) Done() bool {
	switch j.JobState {
	case JobStateCompleted, JobStateCompletedWithErrors, JobStateFailed:
		return true
	}
	return false
}

// Failed reports whether the job ended without applying all of its changes.
func (j Job) Failed() bool {
	return j.JobState == JobStateFailed || j.JobState == JobStateCompletedWithErrors
}
