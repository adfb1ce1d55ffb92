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

// Package consts holds the constants shared across the rabc backend.
package consts

const (
	// ManagedByLabelKey is the label key applied to every object created by the backend.
	ManagedByLabelKey = "rabc.io/managed-by"
	// ManagedByLabelValue is the value associated to the ManagedByLabelKey label.
	ManagedByLabelValue = "rabc-manager"
	// UserNameLabelKey is the label key referencing the owning user on CSR objects.
	UserNameLabelKey = "rabc.io/user"

	// CSRApprovalReason is the reason set on the approval condition of managed CSRs.
	CSRApprovalReason = "RABCApprove"
	// CSRApprovalMessage is the message set on the approval condition of managed CSRs.
	CSRApprovalMessage = "Approved by RABC backend"

	// DefaultActor is the actor recorded on audit entries when no operator identity is available.
	DefaultActor = "system"

	// DefaultDataDir is the default directory storing per-user credentials.
	DefaultDataDir = "/var/lib/rabc"
	// DefaultListenAddress is the default address the API server binds to.
	DefaultListenAddress = ":8080"
)
