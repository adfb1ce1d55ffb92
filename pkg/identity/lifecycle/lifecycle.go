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

// Package lifecycle orchestrates the managed-identity state machine: user
// creation issues credentials, disable and delete cascade the revocation of
// every binding referencing the user or its groups, enable re-issues fresh
// credentials. Each operation writes through to the mirror store and the
// audit trail after its external side effects succeed.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/audit"
	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/identity/issuer"
	"github.com/rabc-io/rabc/pkg/mirror"
	"github.com/rabc-io/rabc/pkg/storage"
)

// CredentialIssuer abstracts the certificate issuance workflow.
type CredentialIssuer interface {
	Issue(ctx context.Context, username string, groups []string) (*issuer.Bundle, error)
}

// Result reports the outcome of a lifecycle operation.
type Result struct {
	// User is the record after the operation (nil after a delete).
	User *mirror.User
	// Unchanged is true when the operation was a no-op (e.g. disabling an
	// already disabled user).
	Unchanged bool
	// RevokedBindings is the number of bindings revoked by the operation.
	RevokedBindings int
}

// Manager sequences the identity lifecycle operations. Concurrent operations
// on distinct usernames are safe; callers are expected to serialize
// operations targeting the same username.
type Manager struct {
	store   mirror.Store
	creds   *storage.CredentialStore
	issuer  CredentialIssuer
	index   *bindings.Index
	revoker *bindings.Revoker
	sink    audit.Sink
}

// NewManager wires a lifecycle Manager from its collaborators.
func NewManager(store mirror.Store, creds *storage.CredentialStore, credIssuer CredentialIssuer,
	index *bindings.Index, revoker *bindings.Revoker, sink audit.Sink) *Manager {
	return &Manager{
		store:   store,
		creds:   creds,
		issuer:  credIssuer,
		index:   index,
		revoker: revoker,
		sink:    sink,
	}
}

// Create provisions a new user: it issues the credentials and, only on
// success, persists the user record. No record is left behind when issuance
// fails.
func (m *Manager) Create(ctx context.Context, username string, groups []string) (*Result, error) {
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "must not be empty"}
	}

	if _, err := m.store.GetUser(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if err != mirror.ErrNotFound {
		return nil, fmt.Errorf("unable to check whether user %q exists: %w", username, err)
	}

	klog.Infof("Creating user %q (groups: %v)", username, groups)
	bundle, err := m.issuer.Issue(ctx, username, groups)
	if err != nil {
		return nil, fmt.Errorf("unable to create user %q: %w", username, err)
	}

	user := &mirror.User{
		Username:       username,
		Groups:         groups,
		CertPath:       bundle.Dir,
		KubeconfigPath: bundle.KubeconfigPath,
		Status:         mirror.UserActive,
		CreatedAt:      time.Now(),
	}
	if err := m.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("unable to persist user %q: %w", username, err)
	}

	m.sink.Record(ctx, audit.ActionUserCreated, "User", username, map[string]any{"groups": groups})
	return &Result{User: user}, nil
}

// Disable revokes the user's credentials and every binding referencing the
// user or any of its groups, then marks the record disabled. Disabling an
// already disabled user is a no-op.
func (m *Manager) Disable(ctx context.Context, username string) (*Result, error) {
	user, err := m.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if user.Status == mirror.UserDisabled {
		klog.V(2).Infof("User %q already disabled", username)
		return &Result{User: user, Unchanged: true}, nil
	}

	klog.Infof("Disabling user %q", username)
	revoked, err := m.revokeAll(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("unable to disable user %q: %w", username, err)
	}

	m.creds.Cleanup(username, user.CertPath, user.KubeconfigPath)

	now := time.Now()
	user.Status = mirror.UserDisabled
	user.RevokedAt = &now
	user.CertPath = ""
	user.KubeconfigPath = ""
	if err := m.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("unable to persist the disabled state of user %q: %w", username, err)
	}

	m.sink.Record(ctx, audit.ActionUserDisabled, "User", username, map[string]any{
		"groups":          user.Groups,
		"revokedBindings": revoked,
	})
	return &Result{User: user, RevokedBindings: revoked}, nil
}

// Enable re-issues credentials for a disabled user. Previously revoked
// bindings are not restored: an operator has to re-create them explicitly.
// Enabling an already active user is a no-op.
func (m *Manager) Enable(ctx context.Context, username string) (*Result, error) {
	user, err := m.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if user.Status == mirror.UserActive {
		klog.V(2).Infof("User %q already active", username)
		return &Result{User: user, Unchanged: true}, nil
	}

	klog.Infof("Re-enabling user %q", username)
	bundle, err := m.issuer.Issue(ctx, username, user.Groups)
	if err != nil {
		return nil, fmt.Errorf("unable to re-enable user %q: %w", username, err)
	}

	user.Status = mirror.UserActive
	user.RevokedAt = nil
	user.CertPath = bundle.Dir
	user.KubeconfigPath = bundle.KubeconfigPath
	if err := m.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("unable to persist the re-enabled state of user %q: %w", username, err)
	}

	m.sink.Record(ctx, audit.ActionUserReenabled, "User", username, map[string]any{"groups": user.Groups})
	return &Result{User: user}, nil
}

// Delete permanently removes the user. The binding revocation and file
// cleanup are computed independently of the current status, since a deleted
// user may arrive directly from the active state.
func (m *Manager) Delete(ctx context.Context, username string) (*Result, error) {
	user, err := m.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	klog.Infof("Deleting user %q", username)
	revoked, err := m.revokeAll(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("unable to delete user %q: %w", username, err)
	}

	m.creds.Cleanup(username, user.CertPath, user.KubeconfigPath)

	if err := m.store.DeleteUser(ctx, username); err != nil {
		return nil, fmt.Errorf("unable to remove the record of user %q: %w", username, err)
	}

	m.sink.Record(ctx, audit.ActionUserDeleted, "User", username, map[string]any{
		"groups":          user.Groups,
		"revokedBindings": revoked,
	})
	return &Result{RevokedBindings: revoked}, nil
}

func (m *Manager) getUser(ctx context.Context, username string) (*mirror.User, error) {
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "must not be empty"}
	}

	user, err := m.store.GetUser(ctx, username)
	switch {
	case err == mirror.ErrNotFound:
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("unable to retrieve user %q: %w", username, err)
	}
	return user, nil
}

// revokeAll removes every binding referencing the user or any of its groups.
func (m *Manager) revokeAll(ctx context.Context, user *mirror.User) (int, error) {
	subjects := append([]string{user.Username}, user.Groups...)

	roleBindings, clusterRoleBindings, err := m.index.FindBySubjects(ctx, subjects)
	if err != nil {
		return 0, err
	}
	klog.V(2).Infof("Found %d RoleBindings and %d ClusterRoleBindings referencing subjects %v",
		len(roleBindings), len(clusterRoleBindings), subjects)

	return m.revoker.Revoke(ctx, roleBindings, clusterRoleBindings)
}
