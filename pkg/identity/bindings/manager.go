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

package bindings

import (
	"context"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/rabc-io/rabc/pkg/mirror"
)

// Manager creates and deletes bindings with the dual-write discipline: the
// cluster write runs first, the mirror record follows. A mirror write failing
// after its cluster counterpart succeeded is logged as an inconsistency and
// surfaced, since it leaves a dangling cluster-side change.
type Manager struct {
	client kubernetes.Interface
	store  mirror.BindingStore
}

// NewManager returns a binding Manager over the given cluster and mirror.
func NewManager(client kubernetes.Interface, store mirror.BindingStore) *Manager {
	return &Manager{client: client, store: store}
}

// CreateRoleBinding creates a namespace-scoped binding in the cluster and
// mirrors it.
func (m *Manager) CreateRoleBinding(ctx context.Context, binding *mirror.RoleBinding) error {
	obj := ForgeRoleBinding(binding)
	if _, err := m.client.RbacV1().RoleBindings(binding.Namespace).Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("unable to create RoleBinding %s/%s: %w", binding.Namespace, binding.Name, err)
	}

	if err := m.store.UpsertRoleBinding(ctx, binding); err != nil {
		klog.Errorf("Mirror inconsistency: RoleBinding %s/%s created in the cluster but not mirrored: %v",
			binding.Namespace, binding.Name, err)
		return fmt.Errorf("unable to mirror RoleBinding %s/%s: %w", binding.Namespace, binding.Name, err)
	}
	return nil
}

// CreateClusterRoleBinding creates a cluster-scoped binding in the cluster
// and mirrors it.
func (m *Manager) CreateClusterRoleBinding(ctx context.Context, binding *mirror.ClusterRoleBinding) error {
	obj := ForgeClusterRoleBinding(binding)
	if _, err := m.client.RbacV1().ClusterRoleBindings().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("unable to create ClusterRoleBinding %q: %w", binding.Name, err)
	}

	if err := m.store.UpsertClusterRoleBinding(ctx, binding); err != nil {
		klog.Errorf("Mirror inconsistency: ClusterRoleBinding %q created in the cluster but not mirrored: %v",
			binding.Name, err)
		return fmt.Errorf("unable to mirror ClusterRoleBinding %q: %w", binding.Name, err)
	}
	return nil
}

// DeleteRoleBinding removes a namespace-scoped binding from both stores.
func (m *Manager) DeleteRoleBinding(ctx context.Context, name, namespace string) error {
	err := m.client.RbacV1().RoleBindings(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("unable to delete RoleBinding %s/%s: %w", namespace, name, err)
	}
	return m.store.DeleteRoleBinding(ctx, name, namespace)
}

// DeleteClusterRoleBinding removes a cluster-scoped binding from both stores.
func (m *Manager) DeleteClusterRoleBinding(ctx context.Context, name string) error {
	err := m.client.RbacV1().ClusterRoleBindings().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("unable to delete ClusterRoleBinding %q: %w", name, err)
	}
	return m.store.DeleteClusterRoleBinding(ctx, name)
}

// GetRoleBindingYAML returns the cluster-side manifest of a namespaced
// binding.
func (m *Manager) GetRoleBindingYAML(ctx context.Context, name, namespace string) (string, error) {
	binding, err := m.client.RbacV1().RoleBindings(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return marshalManifest(binding, rbacv1.SchemeGroupVersion.String(), "RoleBinding")
}

// GetClusterRoleBindingYAML returns the cluster-side manifest of a
// cluster-scoped binding.
func (m *Manager) GetClusterRoleBindingYAML(ctx context.Context, name string) (string, error) {
	binding, err := m.client.RbacV1().ClusterRoleBindings().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return marshalManifest(binding, rbacv1.SchemeGroupVersion.String(), "ClusterRoleBinding")
}

// ApplyYAML replaces a binding from its YAML manifest and refreshes the
// mirror record. Only RoleBinding and ClusterRoleBinding kinds are accepted.
func (m *Manager) ApplyYAML(ctx context.Context, manifest []byte) error {
	var probe struct {
		Kind     string `json:"kind"`
		Metadata struct {
			Name      string `json:"name"`
			Namespace string `json:"namespace"`
		} `json:"metadata"`
	}
	if err := yaml.Unmarshal(manifest, &probe); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if probe.Metadata.Name == "" {
		return fmt.Errorf("invalid manifest: missing object name")
	}

	switch probe.Kind {
	case "RoleBinding":
		var binding rbacv1.RoleBinding
		if err := yaml.Unmarshal(manifest, &binding); err != nil {
			return fmt.Errorf("invalid RoleBinding manifest: %w", err)
		}
		if _, err := m.client.RbacV1().RoleBindings(binding.Namespace).Update(ctx, &binding, metav1.UpdateOptions{}); err != nil {
			return fmt.Errorf("unable to replace RoleBinding %s/%s: %w", binding.Namespace, binding.Name, err)
		}
		return m.store.UpsertRoleBinding(ctx, MirrorRoleBinding(&binding))

	case "ClusterRoleBinding":
		var binding rbacv1.ClusterRoleBinding
		if err := yaml.Unmarshal(manifest, &binding); err != nil {
			return fmt.Errorf("invalid ClusterRoleBinding manifest: %w", err)
		}
		if _, err := m.client.RbacV1().ClusterRoleBindings().Update(ctx, &binding, metav1.UpdateOptions{}); err != nil {
			return fmt.Errorf("unable to replace ClusterRoleBinding %q: %w", binding.Name, err)
		}
		return m.store.UpsertClusterRoleBinding(ctx, MirrorClusterRoleBinding(&binding))

	default:
		return fmt.Errorf("unsupported manifest kind %q", probe.Kind)
	}
}

func marshalManifest(obj interface{}, apiVersion, kind string) (string, error) {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("unable to marshal %s manifest: %w", kind, err)
	}
	// The typed clientset strips the TypeMeta; prepend it so the manifest is
	// directly applicable.
	header := fmt.Sprintf("apiVersion: %s\nkind: %s\n", apiVersion, kind)
	return header + string(data), nil
}
