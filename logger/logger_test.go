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

package logger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_Initialize_FileMethod(t *testing.T) {
	dir := t.TempDir()

	err := Initialize("bmcconf", "testhost", LoggerConfig{
		LogLevel:  "debug",
		LogMethod: "file",
		LogFile: LogFile{
			Path:       dir,
			MaxSize:    1,
			MaxBackups: 1,
			MaxAge:     1,
		},
	})
	require.NoError(t, err)

	zap.L().Info("file sink test", zap.String("target", "10.0.0.1"))
	Flush()

	b, err := os.ReadFile(filepath.Join(dir, "bmcconf.log"))
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &entry))
	assert.Equal(t, "file sink test", entry["msg"])
	assert.Equal(t, "bmcconf", entry["app"])
	assert.Equal(t, "testhost", entry["host"])
	assert.Equal(t, "10.0.0.1", entry["target"])
	assert.Equal(t, "debug", GetLevel())
}

func Test_Initialize_VectorMethod(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Initialize("bmcconf", "testhost", LoggerConfig{
		LogLevel:       "info",
		LogMethod:      "vector",
		VectorEndpoint: srv.URL,
	})
	require.NoError(t, err)

	zap.L().Debug("dropped")
	zap.L().Info("shipped")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], `"msg":"shipped"`)
}

func Test_Initialize_UnknownMethod(t *testing.T) {
	assert.Error(t, Initialize("bmcconf", "testhost", LoggerConfig{LogMethod: "syslog"}))
}

func Test_SetLevel(t *testing.T) {
	SetLevel("warn")
	assert.Equal(t, "warn", GetLevel())
	SetLevel("bogus")
	assert.Equal(t, "info", GetLevel())
}

func Test_FromContext(t *testing.T) {
	assert.Equal(t, zap.L(), FromContext(context.Background()))

	l := zap.NewNop().With(zap.String("trace_id", "abc"))
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}
