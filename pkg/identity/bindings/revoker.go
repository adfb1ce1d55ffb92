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

	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/mirror"
)

// RevocationError reports a revocation aborted midway. Bindings already
// processed stay revoked; the counts let an operator resume manually.
type RevocationError struct {
	// Revoked is the number of bindings fully revoked before the failure.
	Revoked int
	// Total is the number of bindings the revocation was asked to process.
	Total int
	// Binding identifies the binding whose deletion failed.
	Binding string
	Err     error
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("revocation partially completed: %d of %d bindings revoked, failed on %q: %v",
		e.Revoked, e.Total, e.Binding, e.Err)
}

func (e *RevocationError) Unwrap() error { return e.Err }

// Revoker deletes bindings from both the cluster and the mirror store.
type Revoker struct {
	client kubernetes.Interface
	store  mirror.BindingStore
}

// NewRevoker returns a Revoker operating on the given cluster and mirror.
func NewRevoker(client kubernetes.Interface, store mirror.BindingStore) *Revoker {
	return &Revoker{client: client, store: store}
}

// Revoke deletes the given bindings, binding by binding, in list order. For
// each binding the cluster-side delete runs first, with not-found treated as
// success (the binding may have been removed directly against the cluster);
// the mirror record is deleted afterwards. Revocation is deliberately
// sequential: the per-binding two-store step stays simple to reason about at
// the cost of latency linear in the binding count. Any cluster-side failure
// other than not-found aborts the remaining loop.
func (r *Revoker) Revoke(ctx context.Context, roleBindings []mirror.RoleBinding,
	clusterRoleBindings []mirror.ClusterRoleBinding) (revoked int, err error) {
	total := len(roleBindings) + len(clusterRoleBindings)

	for i := range roleBindings {
		binding := &roleBindings[i]
		key := fmt.Sprintf("%s/%s", binding.Namespace, binding.Name)

		err := r.client.RbacV1().RoleBindings(binding.Namespace).Delete(ctx, binding.Name, metav1.DeleteOptions{})
		if err != nil && !kerrors.IsNotFound(err) {
			return revoked, &RevocationError{Revoked: revoked, Total: total, Binding: key, Err: err}
		}

		if err := r.store.DeleteRoleBinding(ctx, binding.Name, binding.Namespace); err != nil {
			// The cluster-side copy is already gone: the mirror now carries a
			// dangling record until it is rebuilt.
			klog.Errorf("Mirror inconsistency: RoleBinding %s deleted from the cluster but not from the mirror: %v", key, err)
			return revoked, &RevocationError{Revoked: revoked, Total: total, Binding: key, Err: err}
		}

		revoked++
		klog.V(2).Infof("Revoked RoleBinding %s", key)
	}

	for i := range clusterRoleBindings {
		binding := &clusterRoleBindings[i]

		err := r.client.RbacV1().ClusterRoleBindings().Delete(ctx, binding.Name, metav1.DeleteOptions{})
		if err != nil && !kerrors.IsNotFound(err) {
			return revoked, &RevocationError{Revoked: revoked, Total: total, Binding: binding.Name, Err: err}
		}

		if err := r.store.DeleteClusterRoleBinding(ctx, binding.Name); err != nil {
			klog.Errorf("Mirror inconsistency: ClusterRoleBinding %q deleted from the cluster but not from the mirror: %v",
				binding.Name, err)
			return revoked, &RevocationError{Revoked: revoked, Total: total, Binding: binding.Name, Err: err}
		}

		revoked++
		klog.V(2).Infof("Revoked ClusterRoleBinding %q", binding.Name)
	}

	return revoked, nil
}
