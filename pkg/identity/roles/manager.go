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

// Package roles manages Roles and ClusterRoles with the same dual-write
// discipline as bindings: the cluster write runs first, the mirror record
// follows. Deletion is guarded: a role still granted by any mirrored binding
// cannot be removed.
package roles

import (
	"context"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/mirror"
)

// InUseError is returned when a role deletion is refused because bindings
// still grant the role.
type InUseError struct {
	Name string
	// Bindings is the number of bindings still referencing the role.
	Bindings int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("role %q is still bound by %d binding(s)", e.Name, e.Bindings)
}

// Usage reports how many bindings grant a role.
type Usage struct {
	RoleBindings        int `json:"roleBindings"`
	ClusterRoleBindings int `json:"clusterRoleBindings"`
	Total               int `json:"total"`
}

type bindingStore interface {
	mirror.RoleStore
	RoleBindingsByRoleRef(ctx context.Context, roleName string) ([]mirror.RoleBinding, error)
	ClusterRoleBindingsByRoleRef(ctx context.Context, roleName string) ([]mirror.ClusterRoleBinding, error)
}

// Manager creates and deletes Roles and ClusterRoles in the cluster and the
// mirror store.
type Manager struct {
	client kubernetes.Interface
	store  bindingStore
}

// NewManager returns a role Manager over the given cluster and mirror.
func NewManager(client kubernetes.Interface, store bindingStore) *Manager {
	return &Manager{client: client, store: store}
}

func forgeRules(rules []mirror.PolicyRule) []rbacv1.PolicyRule {
	out := make([]rbacv1.PolicyRule, len(rules))
	for i, rule := range rules {
		out[i] = rbacv1.PolicyRule{
			APIGroups:     rule.APIGroups,
			Resources:     rule.Resources,
			Verbs:         rule.Verbs,
			ResourceNames: rule.ResourceNames,
		}
	}
	return out
}

// CreateRole creates the same namespace-scoped role in each of the given
// namespaces and mirrors every copy.
func (m *Manager) CreateRole(ctx context.Context, name string, namespaces []string, rules []mirror.PolicyRule) error {
	for _, namespace := range namespaces {
		klog.Infof("Creating Role %q in namespace %q", name, namespace)
		obj := &rbacv1.Role{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
				Labels:    map[string]string{consts.ManagedByLabelKey: consts.ManagedByLabelValue},
			},
			Rules: forgeRules(rules),
		}
		if _, err := m.client.RbacV1().Roles(namespace).Create(ctx, obj, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("unable to create Role %s/%s: %w", namespace, name, err)
		}

		record := &mirror.Role{Name: name, Namespace: namespace, Kind: mirror.KindRole, Rules: rules}
		if err := m.store.UpsertRole(ctx, record); err != nil {
			klog.Errorf("Mirror inconsistency: Role %s/%s created in the cluster but not mirrored: %v",
				namespace, name, err)
			return fmt.Errorf("unable to mirror Role %s/%s: %w", namespace, name, err)
		}
	}
	return nil
}

// CreateClusterRole creates a cluster-scoped role and mirrors it.
func (m *Manager) CreateClusterRole(ctx context.Context, name string, rules []mirror.PolicyRule) error {
	klog.Infof("Creating ClusterRole %q", name)
	obj := &rbacv1.ClusterRole{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{consts.ManagedByLabelKey: consts.ManagedByLabelValue},
		},
		Rules: forgeRules(rules),
	}
	if _, err := m.client.RbacV1().ClusterRoles().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("unable to create ClusterRole %q: %w", name, err)
	}

	record := &mirror.Role{Name: name, Kind: mirror.KindClusterRole, Rules: rules}
	if err := m.store.UpsertRole(ctx, record); err != nil {
		klog.Errorf("Mirror inconsistency: ClusterRole %q created in the cluster but not mirrored: %v", name, err)
		return fmt.Errorf("unable to mirror ClusterRole %q: %w", name, err)
	}
	return nil
}

// RoleUsage counts the mirrored bindings granting the given role name.
func (m *Manager) RoleUsage(ctx context.Context, name string) (*Usage, error) {
	roleBindings, err := m.store.RoleBindingsByRoleRef(ctx, name)
	if err != nil {
		return nil, err
	}
	clusterRoleBindings, err := m.store.ClusterRoleBindingsByRoleRef(ctx, name)
	if err != nil {
		return nil, err
	}

	return &Usage{
		RoleBindings:        len(roleBindings),
		ClusterRoleBindings: len(clusterRoleBindings),
		Total:               len(roleBindings) + len(clusterRoleBindings),
	}, nil
}

// DeleteRole removes a namespace-scoped role from both stores, unless a
// mirrored binding in that namespace still grants it.
func (m *Manager) DeleteRole(ctx context.Context, name, namespace string) error {
	bindings, err := m.store.RoleBindingsByRoleRef(ctx, name)
	if err != nil {
		return err
	}
	inUse := 0
	for i := range bindings {
		if bindings[i].Namespace == namespace {
			inUse++
		}
	}
	if inUse > 0 {
		return &InUseError{Name: name, Bindings: inUse}
	}

	klog.Infof("Deleting Role %q from namespace %q", name, namespace)
	err = m.client.RbacV1().Roles(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("unable to delete Role %s/%s: %w", namespace, name, err)
	}
	return m.store.DeleteRole(ctx, name, namespace, mirror.KindRole)
}

// DeleteClusterRole removes a cluster-scoped role from both stores, unless a
// mirrored cluster-scoped binding still grants it.
func (m *Manager) DeleteClusterRole(ctx context.Context, name string) error {
	bindings, err := m.store.ClusterRoleBindingsByRoleRef(ctx, name)
	if err != nil {
		return err
	}
	if len(bindings) > 0 {
		return &InUseError{Name: name, Bindings: len(bindings)}
	}

	klog.Infof("Deleting ClusterRole %q", name)
	err = m.client.RbacV1().ClusterRoles().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("unable to delete ClusterRole %q: %w", name, err)
	}
	return m.store.DeleteRole(ctx, name, "", mirror.KindClusterRole)
}

// GetRoleYAML returns the cluster-side manifest of a namespaced role.
func (m *Manager) GetRoleYAML(ctx context.Context, name, namespace string) (string, error) {
	role, err := m.client.RbacV1().Roles(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return marshalManifest(role, "Role")
}

// GetClusterRoleYAML returns the cluster-side manifest of a cluster-scoped
// role.
func (m *Manager) GetClusterRoleYAML(ctx context.Context, name string) (string, error) {
	role, err := m.client.RbacV1().ClusterRoles().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return marshalManifest(role, "ClusterRole")
}

func marshalManifest(obj interface{}, kind string) (string, error) {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("unable to marshal %s manifest: %w", kind, err)
	}
	// The typed clientset strips the TypeMeta; prepend it so the manifest is
	// directly applicable.
	header := fmt.Sprintf("apiVersion: %s\nkind: %s\n", rbacv1.SchemeGroupVersion.String(), kind)
	return header + string(data), nil
}
