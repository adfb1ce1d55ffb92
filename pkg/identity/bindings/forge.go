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
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/mirror"
)

func forgeSubjects(subjects []mirror.Subject) []rbacv1.Subject {
	out := make([]rbacv1.Subject, len(subjects))
	for i, subject := range subjects {
		out[i] = rbacv1.Subject{
			Kind: subject.Kind,
			Name: subject.Name,
		}
		// ServiceAccount subjects live in the core API group.
		if subject.Kind != rbacv1.ServiceAccountKind {
			out[i].APIGroup = rbacv1.GroupName
		}
	}
	return out
}

func mirrorSubjects(subjects []rbacv1.Subject) []mirror.Subject {
	out := make([]mirror.Subject, len(subjects))
	for i, subject := range subjects {
		out[i] = mirror.Subject{Kind: subject.Kind, Name: subject.Name}
	}
	return out
}

// ForgeRoleBinding builds the cluster-side object for a mirrored binding.
func ForgeRoleBinding(binding *mirror.RoleBinding) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      binding.Name,
			Namespace: binding.Namespace,
			Labels:    map[string]string{consts.ManagedByLabelKey: consts.ManagedByLabelValue},
		},
		Subjects: forgeSubjects(binding.Subjects),
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     binding.RoleRef.Kind,
			Name:     binding.RoleRef.Name,
		},
	}
}

// ForgeClusterRoleBinding builds the cluster-side object for a mirrored
// cluster-scoped binding.
func ForgeClusterRoleBinding(binding *mirror.ClusterRoleBinding) *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:   binding.Name,
			Labels: map[string]string{consts.ManagedByLabelKey: consts.ManagedByLabelValue},
		},
		Subjects: forgeSubjects(binding.Subjects),
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     binding.RoleRef.Kind,
			Name:     binding.RoleRef.Name,
		},
	}
}

// MirrorRoleBinding builds the mirror record for a cluster-side binding.
func MirrorRoleBinding(binding *rbacv1.RoleBinding) *mirror.RoleBinding {
	return &mirror.RoleBinding{
		Name:      binding.Name,
		Namespace: binding.Namespace,
		RoleRef:   mirror.RoleRef{Kind: binding.RoleRef.Kind, Name: binding.RoleRef.Name},
		Subjects:  mirrorSubjects(binding.Subjects),
	}
}

// MirrorClusterRoleBinding builds the mirror record for a cluster-side
// cluster-scoped binding.
func MirrorClusterRoleBinding(binding *rbacv1.ClusterRoleBinding) *mirror.ClusterRoleBinding {
	return &mirror.ClusterRoleBinding{
		Name:     binding.Name,
		RoleRef:  mirror.RoleRef{Kind: binding.RoleRef.Kind, Name: binding.RoleRef.Name},
		Subjects: mirrorSubjects(binding.Subjects),
	}
}
