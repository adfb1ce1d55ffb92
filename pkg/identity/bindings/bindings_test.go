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

package bindings_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	rbacv1 "k8s.io/api/rbac/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/mirror"
	mirrorfake "github.com/rabc-io/rabc/pkg/mirror/fake"
)

func TestBindings(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bindings Suite")
}

func roleBinding(name, namespace string, subjects ...mirror.Subject) mirror.RoleBinding {
	return mirror.RoleBinding{
		Name:      name,
		Namespace: namespace,
		RoleRef:   mirror.RoleRef{Kind: "Role", Name: "edit"},
		Subjects:  subjects,
	}
}

func clusterRoleBinding(name string, subjects ...mirror.Subject) mirror.ClusterRoleBinding {
	return mirror.ClusterRoleBinding{
		Name:     name,
		RoleRef:  mirror.RoleRef{Kind: "ClusterRole", Name: "view"},
		Subjects: subjects,
	}
}

var _ = Describe("The binding index", func() {
	var (
		ctx   context.Context
		store *mirrorfake.Store
		index *bindings.Index
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = mirrorfake.NewStore()
		index = bindings.NewIndex(store)

		rb1 := roleBinding("alice-edit", "default", mirror.Subject{Kind: "User", Name: "alice"})
		rb2 := roleBinding("dev-edit", "staging", mirror.Subject{Kind: "Group", Name: "dev"})
		rb3 := roleBinding("carol-edit", "default", mirror.Subject{Kind: "User", Name: "carol"})
		Expect(store.UpsertRoleBinding(ctx, &rb1)).To(Succeed())
		Expect(store.UpsertRoleBinding(ctx, &rb2)).To(Succeed())
		Expect(store.UpsertRoleBinding(ctx, &rb3)).To(Succeed())

		crb := clusterRoleBinding("dev-view", mirror.Subject{Kind: "ServiceAccount", Name: "dev"})
		Expect(store.UpsertClusterRoleBinding(ctx, &crb)).To(Succeed())
	})

	It("should match bindings on any subject name regardless of kind", func() {
		roleBindings, clusterRoleBindings, err := index.FindBySubjects(ctx, []string{"alice", "dev"})
		Expect(err).ToNot(HaveOccurred())

		Expect(roleBindings).To(HaveLen(2))
		Expect(clusterRoleBindings).To(HaveLen(1))
		Expect(clusterRoleBindings[0].Name).To(Equal("dev-view"))
	})

	It("should return nothing for unreferenced subjects", func() {
		roleBindings, clusterRoleBindings, err := index.FindBySubjects(ctx, []string{"mallory"})
		Expect(err).ToNot(HaveOccurred())
		Expect(roleBindings).To(BeEmpty())
		Expect(clusterRoleBindings).To(BeEmpty())
	})
})

var _ = Describe("The cascading revoker", func() {
	var (
		ctx     context.Context
		client  *fake.Clientset
		store   *mirrorfake.Store
		revoker *bindings.Revoker

		roleBindings        []mirror.RoleBinding
		clusterRoleBindings []mirror.ClusterRoleBinding
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = mirrorfake.NewStore()

		roleBindings = []mirror.RoleBinding{
			roleBinding("alice-edit", "default", mirror.Subject{Kind: "User", Name: "alice"}),
			roleBinding("dev-edit", "staging", mirror.Subject{Kind: "Group", Name: "dev"}),
		}
		clusterRoleBindings = []mirror.ClusterRoleBinding{
			clusterRoleBinding("dev-view", mirror.Subject{Kind: "Group", Name: "dev"}),
		}

		var objects []runtime.Object
		for i := range roleBindings {
			Expect(store.UpsertRoleBinding(ctx, &roleBindings[i])).To(Succeed())
			objects = append(objects, bindings.ForgeRoleBinding(&roleBindings[i]))
		}
		for i := range clusterRoleBindings {
			Expect(store.UpsertClusterRoleBinding(ctx, &clusterRoleBindings[i])).To(Succeed())
			objects = append(objects, bindings.ForgeClusterRoleBinding(&clusterRoleBindings[i]))
		}

		client = fake.NewSimpleClientset(objects...)
		revoker = bindings.NewRevoker(client, store)
	})

	When("both stores hold every binding", func() {
		It("should remove every binding from both stores", func() {
			revoked, err := revoker.Revoke(ctx, roleBindings, clusterRoleBindings)
			Expect(err).ToNot(HaveOccurred())
			Expect(revoked).To(Equal(3))

			clusterRBs, err := client.RbacV1().RoleBindings(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(clusterRBs.Items).To(BeEmpty())
			clusterCRBs, err := client.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(clusterCRBs.Items).To(BeEmpty())

			Expect(store.ListRoleBindings(ctx)).To(BeEmpty())
			Expect(store.ListClusterRoleBindings(ctx)).To(BeEmpty())
		})
	})

	When("the bindings have already been revoked", func() {
		It("should succeed a second time treating not-found as success", func() {
			_, err := revoker.Revoke(ctx, roleBindings, clusterRoleBindings)
			Expect(err).ToNot(HaveOccurred())

			revoked, err := revoker.Revoke(ctx, roleBindings, clusterRoleBindings)
			Expect(err).ToNot(HaveOccurred())
			Expect(revoked).To(Equal(3))
		})
	})

	When("a cluster-side delete fails midway", func() {
		BeforeEach(func() {
			client.PrependReactor("delete", "rolebindings",
				func(action k8stesting.Action) (handled bool, ret runtime.Object, err error) {
					if action.(k8stesting.DeleteAction).GetName() == "dev-edit" {
						return true, nil, kerrors.NewForbidden(
							schema.GroupResource{Group: rbacv1.GroupName, Resource: "rolebindings"},
							"dev-edit", errors.New("rbac: access denied"))
					}
					return false, nil, nil
				})
		})

		It("should abort and report the partially completed count", func() {
			revoked, err := revoker.Revoke(ctx, roleBindings, clusterRoleBindings)

			var revocationErr *bindings.RevocationError
			Expect(errors.As(err, &revocationErr)).To(BeTrue())
			Expect(revocationErr.Revoked).To(Equal(1))
			Expect(revocationErr.Total).To(Equal(3))
			Expect(revocationErr.Binding).To(Equal("staging/dev-edit"))
			Expect(revoked).To(Equal(1))

			// The first binding stays revoked in both stores.
			_, err = client.RbacV1().RoleBindings("default").Get(ctx, "alice-edit", metav1.GetOptions{})
			Expect(kerrors.IsNotFound(err)).To(BeTrue())
			mirrored, err := store.ListRoleBindings(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(HaveLen(1))
			Expect(mirrored[0].Name).To(Equal("dev-edit"))

			// The cluster-scoped binding was never reached.
			Expect(store.ListClusterRoleBindings(ctx)).ToNot(BeEmpty())
		})
	})

	When("a mirror delete fails after the cluster-side delete", func() {
		BeforeEach(func() {
			store.ErrFunc = func(op string) error {
				if op == "DeleteClusterRoleBinding" {
					return fmt.Errorf("mirror unavailable")
				}
				return nil
			}
		})

		It("should surface the inconsistency, leaving a dangling mirror record", func() {
			revoked, err := revoker.Revoke(ctx, roleBindings, clusterRoleBindings)

			var revocationErr *bindings.RevocationError
			Expect(errors.As(err, &revocationErr)).To(BeTrue())
			Expect(revoked).To(Equal(2))

			// Dual-store agreement is violated exactly for the failed binding:
			// the cluster copy is gone, the mirror record survives.
			_, err = client.RbacV1().ClusterRoleBindings().Get(ctx, "dev-view", metav1.GetOptions{})
			Expect(kerrors.IsNotFound(err)).To(BeTrue())

			store.ErrFunc = nil
			Expect(store.ListClusterRoleBindings(ctx)).To(HaveLen(1))
		})
	})
})

var _ = Describe("The binding manager", func() {
	var (
		ctx     context.Context
		client  *fake.Clientset
		store   *mirrorfake.Store
		manager *bindings.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = fake.NewSimpleClientset()
		store = mirrorfake.NewStore()
		manager = bindings.NewManager(client, store)
	})

	Describe("creating a role binding", func() {
		binding := roleBinding("alice-edit", "default", mirror.Subject{Kind: "User", Name: "alice"})

		It("should write the cluster first and the mirror second", func() {
			Expect(manager.CreateRoleBinding(ctx, &binding)).To(Succeed())

			created, err := client.RbacV1().RoleBindings("default").Get(ctx, "alice-edit", metav1.GetOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(created.RoleRef.Name).To(Equal("edit"))
			Expect(created.Subjects).To(HaveLen(1))
			Expect(created.Subjects[0].APIGroup).To(Equal(rbacv1.GroupName))

			mirrored, err := store.ListRoleBindings(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(HaveLen(1))
		})

		It("should not mirror when the cluster write fails", func() {
			Expect(manager.CreateRoleBinding(ctx, &binding)).To(Succeed())
			err := manager.CreateRoleBinding(ctx, &binding)
			Expect(err).To(HaveOccurred())
			Expect(kerrors.IsAlreadyExists(errors.Unwrap(err))).To(BeTrue())
		})
	})

	Describe("applying a manifest", func() {
		BeforeEach(func() {
			binding := clusterRoleBinding("dev-view", mirror.Subject{Kind: "Group", Name: "dev"})
			Expect(manager.CreateClusterRoleBinding(ctx, &binding)).To(Succeed())
		})

		It("should replace the cluster object and refresh the mirror", func() {
			manifest := []byte(`apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRoleBinding
metadata:
  name: dev-view
roleRef:
  apiGroup: rbac.authorization.k8s.io
  kind: ClusterRole
  name: admin
subjects:
- apiGroup: rbac.authorization.k8s.io
  kind: Group
  name: dev
`)
			Expect(manager.ApplyYAML(ctx, manifest)).To(Succeed())

			updated, err := client.RbacV1().ClusterRoleBindings().Get(ctx, "dev-view", metav1.GetOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(updated.RoleRef.Name).To(Equal("admin"))

			mirrored, err := store.ListClusterRoleBindings(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(HaveLen(1))
			Expect(mirrored[0].RoleRef.Name).To(Equal("admin"))
		})

		It("should reject unsupported kinds", func() {
			Expect(manager.ApplyYAML(ctx, []byte("kind: Pod\nmetadata:\n  name: nope\n"))).ToNot(Succeed())
		})
	})
})
