// Copyright 2024-2026 The Rabc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package names forges the object names used against the Kubernetes API.
package names

import (
	"fmt"
	"strings"
	"time"
)

// Sanitize converts an arbitrary string into a valid Kubernetes object name:
// lower-case, every character outside [a-z0-9-] replaced with a dash, and
// leading/trailing dashes stripped.
func Sanitize(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	return strings.Trim(b.String(), "-")
}

// SigningRequestName forges a unique name for the CSR of the given user.
// The creation timestamp makes re-issuances (e.g. on enable) collision-free
// with previous, possibly still pending, requests.
func SigningRequestName(username string, now time.Time) string {
	return Sanitize(fmt.Sprintf("%s-csr-%d", username, now.UnixMilli()))
}
