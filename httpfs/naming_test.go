/***************************************************************
 *
 * Copyright (C) 2026, HTTPFS Project Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package httpfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	fsys, err := New("https", nil, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		path   string
		url    string
		isFile bool
	}{
		{"/example.com/data/file.bin..", "https://example.com/data/file.bin", true},
		{"/example.com/file..", "https://example.com/file", true},
		{"/example.com/data", "", false},
		{"/example.com", "", false},
		{"/", "", false},
		{"", "", false},
		// The marker is only meaningful as a suffix.
		{"/example.com/..a", "", false},
	}
	for _, tt := range tests {
		url, isFile := fsys.resolveURL(tt.path)
		assert.Equal(t, tt.isFile, isFile, "path %q", tt.path)
		assert.Equal(t, tt.url, url, "path %q", tt.path)
	}
}

func TestResolveURLSchemeVariants(t *testing.T) {
	for _, scheme := range []string{"http", "https", "ftp"} {
		fsys, err := New(scheme, nil, nil, nil)
		require.NoError(t, err)
		url, isFile := fsys.resolveURL("/host.example/path..")
		require.True(t, isFile)
		assert.Equal(t, scheme+"://host.example/path", url)
	}
}
