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

package mirror

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested record is not in the mirror.
var ErrNotFound = errors.New("record not found")

// Store abstracts the persistence of the mirrored access-control state.
// Every write is an independent upsert or delete: there is no transaction
// spanning a record and its cluster-side counterpart.
type Store interface {
	UserStore
	BindingStore
	RoleStore
	ServiceAccountStore
	AuditStore
}

// UserStore persists the managed user records.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpsertUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, username string) error
}

// BindingStore persists the mirrored binding records.
type BindingStore interface {
	UpsertRoleBinding(ctx context.Context, binding *RoleBinding) error
	DeleteRoleBinding(ctx context.Context, name, namespace string) error
	ListRoleBindings(ctx context.Context) ([]RoleBinding, error)
	RoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]RoleBinding, error)

	UpsertClusterRoleBinding(ctx context.Context, binding *ClusterRoleBinding) error
	DeleteClusterRoleBinding(ctx context.Context, name string) error
	ListClusterRoleBindings(ctx context.Context) ([]ClusterRoleBinding, error)
	ClusterRoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]ClusterRoleBinding, error)

	RoleBindingsByRoleRef(ctx context.Context, roleName string) ([]RoleBinding, error)
	ClusterRoleBindingsByRoleRef(ctx context.Context, roleName string) ([]ClusterRoleBinding, error)
}

// RoleStore persists the mirrored role records.
type RoleStore interface {
	UpsertRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, name, namespace string, kind RoleKind) error
	ListRoles(ctx context.Context) ([]Role, error)
}

// ServiceAccountStore persists the provisioned service account records.
type ServiceAccountStore interface {
	UpsertServiceAccount(ctx context.Context, sa *ServiceAccount) error
	ListServiceAccounts(ctx context.Context) ([]ServiceAccount, error)
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}
