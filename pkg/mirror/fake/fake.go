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

// Package fake provides an in-memory mirror.Store for tests and dev mode.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rabc-io/rabc/pkg/mirror"
)

// Store is an in-memory, thread-safe implementation of mirror.Store.
type Store struct {
	mu sync.RWMutex

	users               map[string]mirror.User
	roleBindings        map[rbKey]mirror.RoleBinding
	clusterRoleBindings map[string]mirror.ClusterRoleBinding
	roles               map[roleKey]mirror.Role
	serviceAccounts     map[rbKey]mirror.ServiceAccount
	audit               []mirror.AuditEntry

	// ErrFunc, when set, is consulted before every operation with the
	// operation name, allowing tests to inject failures.
	ErrFunc func(op string) error
}

type rbKey struct{ name, namespace string }

type roleKey struct {
	name, namespace string
	kind            mirror.RoleKind
}

var _ mirror.Store = &Store{}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:               map[string]mirror.User{},
		roleBindings:        map[rbKey]mirror.RoleBinding{},
		clusterRoleBindings: map[string]mirror.ClusterRoleBinding{},
		roles:               map[roleKey]mirror.Role{},
		serviceAccounts:     map[rbKey]mirror.ServiceAccount{},
	}
}

func (s *Store) fail(op string) error {
	if s.ErrFunc != nil {
		return s.ErrFunc(op)
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*mirror.User, error) {
	if err := s.fail("GetUser"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, mirror.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]mirror.User, error) {
	if err := s.fail("ListUsers"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]mirror.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpsertUser(_ context.Context, user *mirror.User) error {
	if err := s.fail("UpsertUser"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.users[user.Username] = stored
	return nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	if err := s.fail("DeleteUser"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, username)
	return nil
}

func (s *Store) UpsertRoleBinding(_ context.Context, binding *mirror.RoleBinding) error {
	if err := s.fail("UpsertRoleBinding"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roleBindings[rbKey{binding.Name, binding.Namespace}] = *binding
	return nil
}

func (s *Store) DeleteRoleBinding(_ context.Context, name, namespace string) error {
	if err := s.fail("DeleteRoleBinding"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.roleBindings, rbKey{name, namespace})
	return nil
}

func (s *Store) ListRoleBindings(_ context.Context) ([]mirror.RoleBinding, error) {
	if err := s.fail("ListRoleBindings"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings := make([]mirror.RoleBinding, 0, len(s.roleBindings))
	for _, binding := range s.roleBindings {
		bindings = append(bindings, binding)
	}
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Namespace != bindings[j].Namespace {
			return bindings[i].Namespace < bindings[j].Namespace
		}
		return bindings[i].Name < bindings[j].Name
	})
	return bindings, nil
}

func (s *Store) RoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]mirror.RoleBinding, error) {
	bindings, err := s.ListRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []mirror.RoleBinding
	for i := range bindings {
		if mirror.SubjectsMatch(bindings[i].Subjects, subjectNames) {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *Store) UpsertClusterRoleBinding(_ context.Context, binding *mirror.ClusterRoleBinding) error {
	if err := s.fail("UpsertClusterRoleBinding"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clusterRoleBindings[binding.Name] = *binding
	return nil
}

func (s *Store) DeleteClusterRoleBinding(_ context.Context, name string) error {
	if err := s.fail("DeleteClusterRoleBinding"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clusterRoleBindings, name)
	return nil
}

func (s *Store) ListClusterRoleBindings(_ context.Context) ([]mirror.ClusterRoleBinding, error) {
	if err := s.fail("ListClusterRoleBindings"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings := make([]mirror.ClusterRoleBinding, 0, len(s.clusterRoleBindings))
	for _, binding := range s.clusterRoleBindings {
		bindings = append(bindings, binding)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Name < bindings[j].Name })
	return bindings, nil
}

func (s *Store) ClusterRoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]mirror.ClusterRoleBinding, error) {
	bindings, err := s.ListClusterRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []mirror.ClusterRoleBinding
	for i := range bindings {
		if mirror.SubjectsMatch(bindings[i].Subjects, subjectNames) {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *Store) RoleBindingsByRoleRef(ctx context.Context, roleName string) ([]mirror.RoleBinding, error) {
	bindings, err := s.ListRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []mirror.RoleBinding
	for i := range bindings {
		if bindings[i].RoleRef.Name == roleName {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *Store) ClusterRoleBindingsByRoleRef(ctx context.Context, roleName string) ([]mirror.ClusterRoleBinding, error) {
	bindings, err := s.ListClusterRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []mirror.ClusterRoleBinding
	for i := range bindings {
		if bindings[i].RoleRef.Name == roleName {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *Store) UpsertRole(_ context.Context, role *mirror.Role) error {
	if err := s.fail("UpsertRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[roleKey{role.Name, role.Namespace, role.Kind}] = *role
	return nil
}

func (s *Store) DeleteRole(_ context.Context, name, namespace string, kind mirror.RoleKind) error {
	if err := s.fail("DeleteRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.roles, roleKey{name, namespace, kind})
	return nil
}

func (s *Store) ListRoles(_ context.Context) ([]mirror.Role, error) {
	if err := s.fail("ListRoles"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]mirror.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Kind != roles[j].Kind {
			return roles[i].Kind < roles[j].Kind
		}
		if roles[i].Namespace != roles[j].Namespace {
			return roles[i].Namespace < roles[j].Namespace
		}
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

func (s *Store) UpsertServiceAccount(_ context.Context, sa *mirror.ServiceAccount) error {
	if err := s.fail("UpsertServiceAccount"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sa
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.serviceAccounts[rbKey{sa.Name, sa.Namespace}] = stored
	return nil
}

func (s *Store) ListServiceAccounts(_ context.Context) ([]mirror.ServiceAccount, error) {
	if err := s.fail("ListServiceAccounts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]mirror.ServiceAccount, 0, len(s.serviceAccounts))
	for _, sa := range s.serviceAccounts {
		accounts = append(accounts, sa)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Namespace != accounts[j].Namespace {
			return accounts[i].Namespace < accounts[j].Namespace
		}
		return accounts[i].Name < accounts[j].Name
	})
	return accounts, nil
}

func (s *Store) AppendAudit(_ context.Context, entry *mirror.AuditEntry) error {
	if err := s.fail("AppendAudit"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, stored)
	return nil
}

func (s *Store) ListAudit(_ context.Context, limit int) ([]mirror.AuditEntry, error) {
	if err := s.fail("ListAudit"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]mirror.AuditEntry, len(s.audit))
	copy(entries, s.audit)
	// Most recent first.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
