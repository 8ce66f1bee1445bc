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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/comcast/bmcconf/common"
	"github.com/comcast/bmcconf/config"
)

const (
	testUser  = "root"
	testPass  = "calvin"
	testToken = "f7a2c1d0e4b94b8d"

	sessionsPath = "/redfish/v1/SessionService/Sessions"
	sessionPath  = "/redfish/v1/SessionService/Sessions/7"

	dellSystem  = "/redfish/v1/Systems/System.Embedded.1"
	dellBios    = dellSystem + "/Bios"
	dellManager = "/redfish/v1/Managers/iDRAC.Embedded.1"

	hpeSystem = "/redfish/v1/Systems/1"
)

type doc map[string]interface{}

func link(uri string) doc {
	return doc{"@odata.id": uri}
}

func members(uris ...string) doc {
	m := make([]interface{}, 0, len(uris))
	for _, u := range uris {
		m = append(m, link(u))
	}
	return doc{"Members": m, "Members@odata.count": len(uris)}
}

// call is one request received by the fake controller
type call struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]interface{}
}

type hook func(w http.ResponseWriter, r *http.Request, body map[string]interface{})

// fakeController is a minimal redfish service holding JSON documents by path.
// Writes are recorded and answered with 200 unless a hook handles them.
type fakeController struct {
	mu        sync.Mutex
	srv       *httptest.Server
	resources map[string]doc
	etags     map[string]string
	hooks     map[string]hook
	calls     []call
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()

	f := &fakeController{
		resources: make(map[string]doc),
		etags:     make(map[string]string),
		hooks:     make(map[string]hook),
	}

	f.resources["/redfish/v1"] = doc{
		"@odata.id":      "/redfish/v1/",
		"Id":             "RootService",
		"RedfishVersion": "1.6.0",
		"Systems":        link("/redfish/v1/Systems"),
		"Managers":       link("/redfish/v1/Managers"),
		"AccountService": link("/redfish/v1/AccountService"),
		"SessionService": link("/redfish/v1/SessionService"),
		"Links":          doc{"Sessions": link(sessionsPath)},
	}

	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	return f
}

func norm(p string) string {
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func redfishError(w http.ResponseWriter, status int, code, msg string, ext ...doc) {
	info := make([]interface{}, 0, len(ext))
	for _, e := range ext {
		info = append(info, e)
	}
	writeJSON(w, status, doc{"error": doc{
		"code":                  code,
		"message":               msg,
		"@Message.ExtendedInfo": info,
	}})
}

func (f *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	path := norm(r.URL.Path)

	var body map[string]interface{}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{Method: r.Method, Path: path, Header: r.Header.Clone(), Body: body})
	h := f.hooks[r.Method+" "+path]
	f.mu.Unlock()

	if r.Method == http.MethodPost && path == sessionsPath {
		if body["UserName"] != testUser || body["Password"] != testPass {
			redfishError(w, http.StatusUnauthorized, "Base.1.2.NoValidSession", "invalid credentials")
			return
		}
		w.Header().Set("X-Auth-Token", testToken)
		w.Header().Set("Location", sessionPath)
		writeJSON(w, http.StatusCreated, link(sessionPath))
		return
	}

	if path != "/redfish/v1" && r.Header.Get("X-Auth-Token") != testToken {
		redfishError(w, http.StatusUnauthorized, "Base.1.2.NoValidSession", "no valid session")
		return
	}

	if h != nil {
		h(w, r, body)
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		res, ok := f.resources[path]
		etag := f.etags[path]
		var out []byte
		if ok {
			out, _ = json.Marshal(res)
		}
		f.mu.Unlock()

		if !ok {
			redfishError(w, http.StatusNotFound, "Base.1.2.ResourceMissingAtURI", "resource not found: "+path)
			return
		}
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	case http.MethodDelete:
		w.WriteHeader(http.StatusOK)
	default:
		writeJSON(w, http.StatusOK, doc{})
	}
}

func (f *fakeController) set(path string, d doc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[norm(path)] = d
}

func (f *fakeController) update(path, key string, v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[norm(path)][key] = v
}

func (f *fakeController) on(method, path string, h hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method+" "+norm(path)] = h
}

// requests returns the recorded calls matching method and path.
func (f *fakeController) requests(method, path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Path == norm(path) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeController) target() config.Target {
	return config.Target{Host: f.srv.URL, AssetTag: "A12345"}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.BMCTimeout = 5 * time.Second
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func testCredential() *common.Credential {
	return &common.Credential{User: testUser, Pass: testPass}
}

// newDellController serves an iDRAC 9 in UEFI boot mode.
func newDellController(t *testing.T) *fakeController {
	f := newFakeController(t)

	f.set("/redfish/v1/Systems", members(dellSystem))
	f.set(dellSystem, doc{
		"@odata.id":          dellSystem,
		"Id":                 "System.Embedded.1",
		"Manufacturer":       "Dell Inc.",
		"Model":              "PowerEdge R640",
		"PowerState":         "On",
		"AssetTag":           "",
		"Bios":               link(dellBios),
		"EthernetInterfaces": link(dellSystem + "/EthernetInterfaces"),
		"Actions": doc{
			"#ComputerSystem.Reset": doc{"target": dellSystem + "/Actions/ComputerSystem.Reset"},
		},
	})
	f.set(dellBios, doc{
		"@odata.id":         dellBios,
		"Id":                "Bios",
		"Attributes":        doc{"BootMode": "Uefi", "ProcVirtualization": "Enabled"},
		"@Redfish.Settings": doc{"SettingsObject": link(dellBios + "/Settings")},
		"Actions": doc{
			"#Bios.ResetBios": doc{"target": dellBios + "/Actions/Bios.ResetBios"},
		},
	})
	f.set(dellBios+"/Settings", doc{"@odata.id": dellBios + "/Settings", "Attributes": doc{}})
	f.set(dellSystem+"/BootSources", doc{
		"@odata.id": dellSystem + "/BootSources",
		"Attributes": doc{
			"UefiBootSeq": []interface{}{
				doc{"Enabled": true, "Id": "BIOS.Setup.1-1#UefiBootSeq#RAID.Integrated.1-1#a1", "Index": 0, "Name": "RAID.Integrated.1-1"},
				doc{"Enabled": true, "Id": "BIOS.Setup.1-1#UefiBootSeq#NIC.Integrated.1-3-1#b2", "Index": 1, "Name": "NIC.Integrated.1-3-1"},
				doc{"Enabled": true, "Id": "BIOS.Setup.1-1#UefiBootSeq#HardDisk.List.1-1#c3", "Index": 2, "Name": "HardDisk.List.1-1"},
				doc{"Enabled": false, "Id": "BIOS.Setup.1-1#UefiBootSeq#NIC.Integrated.1-1-1#d4", "Index": 3, "Name": "NIC.Integrated.1-1-1"},
			},
		},
	})
	f.set(dellSystem+"/EthernetInterfaces", members(
		dellSystem+"/EthernetInterfaces/NIC.Slot.3-1-1",
		dellSystem+"/EthernetInterfaces/NIC.Integrated.1-3-1",
		dellSystem+"/EthernetInterfaces/NIC.Integrated.1-1-1",
	))
	f.set(dellSystem+"/EthernetInterfaces/NIC.Slot.3-1-1", doc{
		"@odata.id": dellSystem + "/EthernetInterfaces/NIC.Slot.3-1-1", "Id": "NIC.Slot.3-1-1", "SpeedMbps": 10000,
	})
	f.set(dellSystem+"/EthernetInterfaces/NIC.Integrated.1-3-1", doc{
		"@odata.id": dellSystem + "/EthernetInterfaces/NIC.Integrated.1-3-1", "Id": "NIC.Integrated.1-3-1", "SpeedMbps": 1000,
	})
	f.set(dellSystem+"/EthernetInterfaces/NIC.Integrated.1-1-1", doc{
		"@odata.id": dellSystem + "/EthernetInterfaces/NIC.Integrated.1-1-1", "Id": "NIC.Integrated.1-1-1", "SpeedMbps": 1000,
	})

	f.set("/redfish/v1/Managers", members(dellManager))
	f.set(dellManager, doc{"@odata.id": dellManager, "Id": "iDRAC.Embedded.1", "ManagerType": "BMC"})
	f.set("/redfish/v1/AccountService", doc{
		"@odata.id": "/redfish/v1/AccountService",
		"Id":        "AccountService",
		"Accounts":  link(dellManager + "/Accounts"),
	})
	f.set(dellManager+"/Accounts", members(dellManager+"/Accounts/1", dellManager+"/Accounts/2"))
	f.set(dellManager+"/Accounts/1", doc{"@odata.id": dellManager + "/Accounts/1", "Id": "1", "UserName": "", "Enabled": false})
	f.set(dellManager+"/Accounts/2", doc{"@odata.id": dellManager + "/Accounts/2", "Id": "2", "UserName": "Administrator", "Enabled": true})

	// resets move the power state the way the action implies
	f.on(http.MethodPost, dellSystem+"/Actions/ComputerSystem.Reset", func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		switch body["ResetType"] {
		case "ForceOff", "GracefulShutdown":
			f.update(dellSystem, "PowerState", "Off")
		default:
			f.update(dellSystem, "PowerState", "On")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	f.on(http.MethodPost, dellManager+"/Jobs", func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		w.Header().Set("Location", dellManager+"/Jobs/JID_001")
		writeJSON(w, http.StatusOK, doc{})
	})
	f.set(dellManager+"/Jobs/JID_001", doc{
		"@odata.id":       dellManager + "/Jobs/JID_001",
		"Id":              "JID_001",
		"JobState":        "Completed",
		"JobType":         "BIOSConfiguration",
		"Message":         "Job completed successfully.",
		"MessageId":       "PR19",
		"PercentComplete": 100,
	})

	return f
}

// newHPEController serves an iLO 5 system, or an iLO 4 one when gen9 is set.
func newHPEController(t *testing.T, gen9 bool) *fakeController {
	f := newFakeController(t)

	oemKey, manufacturer := "Hpe", "HPE"
	if gen9 {
		oemKey, manufacturer = "Hp", "HP"
	}

	f.set("/redfish/v1/Systems", members(hpeSystem+"/"))
	f.set(hpeSystem, doc{
		"@odata.id":    hpeSystem + "/",
		"Id":           "1",
		"Manufacturer": manufacturer,
		"Model":        "ProLiant DL360 Gen10",
		"PowerState":   "On",
		"Bios":         link(hpeSystem + "/bios/"),
		"Actions": doc{
			"#ComputerSystem.Reset": doc{"target": hpeSystem + "/Actions/ComputerSystem.Reset/"},
		},
		"Oem": doc{oemKey: doc{"PostState": "FinishedPost"}},
	})

	if gen9 {
		f.set(hpeSystem+"/bios", doc{
			"@odata.id":            hpeSystem + "/bios/",
			"AttributeRegistry":    "HpBiosAttributeRegistryP89.1.1.00",
			"BootMode":             "LegacyBios",
			"ServerAssetTag":       "",
			"@Redfish.Settings":    doc{"SettingsObject": link(hpeSystem + "/bios/Settings/")},
			"Oem":                  doc{},
			"IntelligentProvision": "Enabled",
		})
		f.set(hpeSystem+"/bios/Settings", doc{"@odata.id": hpeSystem + "/bios/Settings/"})
	} else {
		f.set(hpeSystem+"/bios", doc{
			"@odata.id":         hpeSystem + "/bios/",
			"Attributes":        doc{"BootMode": "Uefi", "WorkloadProfile": "GeneralPowerEfficientCompute"},
			"@Redfish.Settings": doc{"SettingsObject": link(hpeSystem + "/bios/settings/")},
		})
		f.set(hpeSystem+"/bios/settings", doc{"@odata.id": hpeSystem + "/bios/settings/", "Attributes": doc{}})
	}

	f.set("/redfish/v1/Managers", members("/redfish/v1/Managers/1/"))
	f.set("/redfish/v1/Managers/1", doc{"@odata.id": "/redfish/v1/Managers/1/", "Id": "1", "ManagerType": "BMC"})
	f.set("/redfish/v1/AccountService", doc{
		"@odata.id": "/redfish/v1/AccountService/",
		"Id":        "AccountService",
		"Accounts":  link("/redfish/v1/AccountService/Accounts/"),
	})
	f.set("/redfish/v1/AccountService/Accounts", members("/redfish/v1/AccountService/Accounts/1/"))
	f.set("/redfish/v1/AccountService/Accounts/1", doc{
		"@odata.id": "/redfish/v1/AccountService/Accounts/1/", "Id": "1", "UserName": "Administrator",
	})

	return f
}
