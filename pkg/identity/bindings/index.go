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

// Package bindings manages the access bindings referencing managed
// identities, across the cluster and the local mirror.
package bindings

import (
	"context"
	"fmt"

	"github.com/rabc-io/rabc/pkg/mirror"
)

// Index looks up the mirrored bindings referencing a set of subjects.
type Index struct {
	store mirror.BindingStore
}

// NewIndex returns an Index querying the given mirror store.
func NewIndex(store mirror.BindingStore) *Index {
	return &Index{store: store}
}

// FindBySubjects returns every binding, of either kind, whose subject list
// carries any of the given names. Read-only.
func (i *Index) FindBySubjects(ctx context.Context, subjectNames []string) (
	[]mirror.RoleBinding, []mirror.ClusterRoleBinding, error) {
	roleBindings, err := i.store.RoleBindingsBySubjects(ctx, subjectNames)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to index role bindings: %w", err)
	}

	clusterRoleBindings, err := i.store.ClusterRoleBindingsBySubjects(ctx, subjectNames)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to index cluster role bindings: %w", err)
	}

	return roleBindings, clusterRoleBindings, nil
}
