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

// Package mirror implements the local mirror of the cluster access-control
// state. Every record kept here must also exist in the cluster, and vice
// versa, except during the short window of an in-flight dual write.
package mirror

import "time"

// UserStatus is the lifecycle status of a managed user.
type UserStatus string

const (
	// UserActive marks a user holding valid credentials.
	UserActive UserStatus = "active"
	// UserDisabled marks a user whose credentials and bindings have been revoked.
	UserDisabled UserStatus = "disabled"
)

// User is the mirror record of a managed cluster identity.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	Username       string     `gorm:"uniqueIndex;size:64" json:"username"`
	Groups         []string   `gorm:"serializer:json" json:"groups"`
	CertPath       string     `json:"certPath,omitempty"`
	KubeconfigPath string     `json:"kubeconfigPath,omitempty"`
	Status         UserStatus `gorm:"size:16" json:"status"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Subject references an identity in a binding's subject list.
type Subject struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// RoleRef references the role granted by a binding.
type RoleRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// RoleBinding is the mirror record of a namespace-scoped binding.
type RoleBinding struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Name      string    `gorm:"index:idx_rb_key,unique;size:253" json:"name"`
	Namespace string    `gorm:"index:idx_rb_key,unique;size:63" json:"namespace"`
	RoleRef   RoleRef   `gorm:"serializer:json" json:"roleRef"`
	Subjects  []Subject `gorm:"serializer:json" json:"subjects"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClusterRoleBinding is the mirror record of a cluster-scoped binding.
type ClusterRoleBinding struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Name      string    `gorm:"uniqueIndex;size:253" json:"name"`
	RoleRef   RoleRef   `gorm:"serializer:json" json:"roleRef"`
	Subjects  []Subject `gorm:"serializer:json" json:"subjects"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoleKind discriminates namespace- and cluster-scoped role records.
type RoleKind string

const (
	// KindRole marks a namespace-scoped role record.
	KindRole RoleKind = "Role"
	// KindClusterRole marks a cluster-scoped role record.
	KindClusterRole RoleKind = "ClusterRole"
)

// PolicyRule mirrors one rule of a managed Role or ClusterRole.
type PolicyRule struct {
	APIGroups     []string `json:"apiGroups,omitempty"`
	Resources     []string `json:"resources,omitempty"`
	Verbs         []string `json:"verbs"`
	ResourceNames []string `json:"resourceNames,omitempty"`
}

// Role is the mirror record of a managed Role or ClusterRole. Cluster-scoped
// records carry an empty namespace.
type Role struct {
	ID        uint         `gorm:"primaryKey" json:"-"`
	Name      string       `gorm:"index:idx_role_key,unique;size:253" json:"name"`
	Namespace string       `gorm:"index:idx_role_key,unique;size:63" json:"namespace,omitempty"`
	Kind      RoleKind     `gorm:"index:idx_role_key,unique;size:16" json:"kind"`
	Rules     []PolicyRule `gorm:"serializer:json" json:"rules"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ServiceAccount is the mirror record of a provisioned service account.
type ServiceAccount struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	Name           string    `gorm:"index:idx_sa_key,unique;size:253" json:"name"`
	Namespace      string    `gorm:"index:idx_sa_key,unique;size:63" json:"namespace"`
	KubeconfigPath string    `json:"kubeconfigPath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AuditEntry is an append-only record of a lifecycle transition.
type AuditEntry struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Action     string         `gorm:"size:64;index" json:"action"`
	EntityType string         `gorm:"size:64" json:"entityType"`
	EntityID   string         `gorm:"size:253" json:"entityId"`
	Actor      string         `gorm:"size:64" json:"actor"`
	Metadata   map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// SubjectsMatch reports whether any entry of the subject list carries one of
// the given names. The subject kind is ignored on purpose: the same string may
// appear as a User, Group or ServiceAccount subject and must be treated as
// referencing the identity in every case.
func SubjectsMatch(subjects []Subject, names []string) bool {
	for i := range subjects {
		for _, name := range names {
			if subjects[i].Name == name {
				return true
			}
		}
	}
	return false
}
