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
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the MySQL-backed implementation of Store.
type GormStore struct {
	db *gorm.DB
}

var _ Store = &GormStore{}

// Open connects to MySQL, runs the schema migrations, and returns the store.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to the mirror database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "unable to access the underlying connection pool")
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)

	if err := db.AutoMigrate(&User{}, &RoleBinding{}, &ClusterRoleBinding{}, &Role{}, &ServiceAccount{}, &AuditEntry{}); err != nil {
		return nil, errors.Wrap(err, "unable to migrate the mirror schema")
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an already opened gorm handle. It is meant for tests
// driving the store through a mocked connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Wrapf(err, "unable to retrieve user %q", username)
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list users")
	}
	return users, nil
}

func (s *GormStore) UpsertUser(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "username"}}, UpdateAll: true}).
		Create(user).Error
	return errors.Wrapf(err, "unable to upsert user %q", user.Username)
}

func (s *GormStore) DeleteUser(ctx context.Context, username string) error {
	err := s.db.WithContext(ctx).Where("username = ?", username).Delete(&User{}).Error
	return errors.Wrapf(err, "unable to delete user %q", username)
}

func (s *GormStore) UpsertRoleBinding(ctx context.Context, binding *RoleBinding) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}, {Name: "namespace"}}, UpdateAll: true}).
		Create(binding).Error
	return errors.Wrapf(err, "unable to upsert role binding %s/%s", binding.Namespace, binding.Name)
}

func (s *GormStore) DeleteRoleBinding(ctx context.Context, name, namespace string) error {
	err := s.db.WithContext(ctx).
		Where("name = ? AND namespace = ?", name, namespace).Delete(&RoleBinding{}).Error
	return errors.Wrapf(err, "unable to delete role binding %s/%s", namespace, name)
}

func (s *GormStore) ListRoleBindings(ctx context.Context) ([]RoleBinding, error) {
	var bindings []RoleBinding
	if err := s.db.WithContext(ctx).Order("namespace, name").Find(&bindings).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list role bindings")
	}
	return bindings, nil
}

// RoleBindingsBySubjects retrieves every namespaced binding whose subject list
// carries any of the given names. The subject list is stored as a JSON
// document, and JSON predicates are not portable across MySQL flavors, so the
// match runs in memory; binding sets are small.
func (s *GormStore) RoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]RoleBinding, error) {
	bindings, err := s.ListRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []RoleBinding
	for i := range bindings {
		if SubjectsMatch(bindings[i].Subjects, subjectNames) {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *GormStore) UpsertClusterRoleBinding(ctx context.Context, binding *ClusterRoleBinding) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, UpdateAll: true}).
		Create(binding).Error
	return errors.Wrapf(err, "unable to upsert cluster role binding %q", binding.Name)
}

func (s *GormStore) DeleteClusterRoleBinding(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Where("name = ?", name).Delete(&ClusterRoleBinding{}).Error
	return errors.Wrapf(err, "unable to delete cluster role binding %q", name)
}

func (s *GormStore) ListClusterRoleBindings(ctx context.Context) ([]ClusterRoleBinding, error) {
	var bindings []ClusterRoleBinding
	if err := s.db.WithContext(ctx).Order("name").Find(&bindings).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list cluster role bindings")
	}
	return bindings, nil
}

func (s *GormStore) ClusterRoleBindingsBySubjects(ctx context.Context, subjectNames []string) ([]ClusterRoleBinding, error) {
	bindings, err := s.ListClusterRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []ClusterRoleBinding
	for i := range bindings {
		if SubjectsMatch(bindings[i].Subjects, subjectNames) {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

// RoleBindingsByRoleRef retrieves every namespaced binding granting the given
// role. As with the subject queries, the role reference lives in a JSON
// column, so the match runs in memory.
func (s *GormStore) RoleBindingsByRoleRef(ctx context.Context, roleName string) ([]RoleBinding, error) {
	bindings, err := s.ListRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []RoleBinding
	for i := range bindings {
		if bindings[i].RoleRef.Name == roleName {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *GormStore) ClusterRoleBindingsByRoleRef(ctx context.Context, roleName string) ([]ClusterRoleBinding, error) {
	bindings, err := s.ListClusterRoleBindings(ctx)
	if err != nil {
		return nil, err
	}

	var matched []ClusterRoleBinding
	for i := range bindings {
		if bindings[i].RoleRef.Name == roleName {
			matched = append(matched, bindings[i])
		}
	}
	return matched, nil
}

func (s *GormStore) UpsertRole(ctx context.Context, role *Role) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "namespace"}, {Name: "kind"}},
			UpdateAll: true,
		}).
		Create(role).Error
	return errors.Wrapf(err, "unable to upsert role %q", role.Name)
}

func (s *GormStore) DeleteRole(ctx context.Context, name, namespace string, kind RoleKind) error {
	err := s.db.WithContext(ctx).
		Where("name = ? AND namespace = ? AND kind = ?", name, namespace, kind).Delete(&Role{}).Error
	return errors.Wrapf(err, "unable to delete role %q", name)
}

func (s *GormStore) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Order("kind, namespace, name").Find(&roles).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list roles")
	}
	return roles, nil
}

func (s *GormStore) UpsertServiceAccount(ctx context.Context, sa *ServiceAccount) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}, {Name: "namespace"}}, UpdateAll: true}).
		Create(sa).Error
	return errors.Wrapf(err, "unable to upsert service account %s/%s", sa.Namespace, sa.Name)
}

func (s *GormStore) ListServiceAccounts(ctx context.Context) ([]ServiceAccount, error) {
	var accounts []ServiceAccount
	if err := s.db.WithContext(ctx).Order("namespace, name").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list service accounts")
	}
	return accounts, nil
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	err := s.db.WithContext(ctx).Create(entry).Error
	return errors.Wrapf(err, "unable to append audit entry %q", entry.Action)
}

func (s *GormStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "unable to list audit entries")
	}
	return entries, nil
}
