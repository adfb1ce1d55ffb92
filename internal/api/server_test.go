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

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/rabc-io/rabc/pkg/audit"
	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/identity/issuer"
	"github.com/rabc-io/rabc/pkg/identity/lifecycle"
	"github.com/rabc-io/rabc/pkg/identity/roles"
	"github.com/rabc-io/rabc/pkg/identity/serviceaccount"
	"github.com/rabc-io/rabc/pkg/mirror"
	fakemirror "github.com/rabc-io/rabc/pkg/mirror/fake"
	"github.com/rabc-io/rabc/pkg/storage"
	"github.com/rabc-io/rabc/pkg/utils/testutil"
)

var _ = Describe("Server", func() {
	var (
		client   *fake.Clientset
		store    *fakemirror.Store
		users    *lifecycle.Manager
		bindMgr  *bindings.Manager
		rolesMgr *roles.Manager
		saMgr    *serviceaccount.Manager
		handler  http.Handler
	)

	doRequest := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		payload := map[string]any{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &payload)).To(Succeed())
		return payload
	}

	BeforeEach(func() {
		client = fake.NewSimpleClientset(
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}},
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "staging"}},
			&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "view"}},
			&rbacv1.Role{ObjectMeta: metav1.ObjectMeta{Name: "pod-reader", Namespace: "default"}},
		)
		certificate, err := testutil.FakeSelfSignedCertificate("alice")
		Expect(err).ToNot(HaveOccurred())
		testutil.EnableCSRSigning(client, certificate)
		testutil.EnableTokenIssuance(client, "issued-token")

		store = fakemirror.NewStore()
		creds := storage.NewCredentialStore(GinkgoT().TempDir())
		cluster := issuer.ClusterInfo{Name: "test-cluster", Server: "https://127.0.0.1:6443", CA: certificate}
		credIssuer := issuer.New(client, creds, cluster,
			issuer.WithPollInterval(time.Millisecond), issuer.WithPollTimeout(time.Second))
		sink := audit.NewStoreSink(store, consts.DefaultActor)
		users = lifecycle.NewManager(store, creds, credIssuer,
			bindings.NewIndex(store), bindings.NewRevoker(client, store), sink)
		bindMgr = bindings.NewManager(client, store)
		rolesMgr = roles.NewManager(client, store)
		saMgr = serviceaccount.NewManager(client, creds, store, cluster)

		handler = NewServer(users, bindMgr, rolesMgr, saMgr, store, client).Handler()
	})

	Describe("the route table", func() {
		It("should register every route without panicking", func() {
			Expect(func() {
				NewServer(users, bindMgr, rolesMgr, saMgr, store, client)
			}).ToNot(Panic())
		})
	})

	Describe("the users endpoints", func() {
		createAlice := func() *httptest.ResponseRecorder {
			return doRequest(http.MethodPost, "/api/users", map[string]any{
				"username": "alice", "groups": []string{"developers"},
			})
		}

		It("should create a user and return the active record", func() {
			rec := createAlice()
			Expect(rec.Code).To(Equal(http.StatusCreated))
			payload := decode(rec)
			Expect(payload["username"]).To(Equal("alice"))
			Expect(payload["status"]).To(Equal(string(mirror.UserActive)))
			Expect(payload["kubeconfigPath"]).ToNot(BeEmpty())
		})

		It("should reject an empty username", func() {
			rec := doRequest(http.MethodPost, "/api/users", map[string]any{"username": ""})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a duplicate username", func() {
			Expect(createAlice().Code).To(Equal(http.StatusCreated))
			Expect(createAlice().Code).To(Equal(http.StatusConflict))
		})

		It("should list the known users", func() {
			Expect(createAlice().Code).To(Equal(http.StatusCreated))

			rec := doRequest(http.MethodGet, "/api/users", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var users []mirror.User
			Expect(json.Unmarshal(rec.Body.Bytes(), &users)).To(Succeed())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Username).To(Equal("alice"))
		})

		It("should disable a user and report the revoked bindings", func() {
			Expect(createAlice().Code).To(Equal(http.StatusCreated))
			Expect(store.UpsertRoleBinding(ctxTODO(), &mirror.RoleBinding{
				Name: "alice-edit", Namespace: "default",
				Subjects: []mirror.Subject{{Kind: "User", Name: "alice"}},
				RoleRef:  mirror.RoleRef{Kind: "ClusterRole", Name: "edit"},
			})).To(Succeed())

			rec := doRequest(http.MethodPost, "/api/users/alice/disable", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			payload := decode(rec)
			Expect(payload["message"]).To(Equal(fmt.Sprintf("User %q disabled (soft revoke)", "alice")))
			Expect(payload["revokedBindings"]).To(BeEquivalentTo(1))

			By("disabling again, which is a no-op")
			rec = doRequest(http.MethodPost, "/api/users/alice/disable", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["message"]).To(Equal("User already disabled"))
		})

		It("should return a not found error when the user does not exist", func() {
			Expect(doRequest(http.MethodPost, "/api/users/ghost/disable", nil).Code).To(Equal(http.StatusNotFound))
			Expect(doRequest(http.MethodPost, "/api/users/ghost/enable", nil).Code).To(Equal(http.StatusNotFound))
			Expect(doRequest(http.MethodDelete, "/api/users/ghost", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("should re-enable a disabled user with fresh credentials", func() {
			Expect(createAlice().Code).To(Equal(http.StatusCreated))
			Expect(doRequest(http.MethodPost, "/api/users/alice/disable", nil).Code).To(Equal(http.StatusOK))

			// Request names embed a millisecond timestamp.
			time.Sleep(2 * time.Millisecond)
			rec := doRequest(http.MethodPost, "/api/users/alice/enable", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			payload := decode(rec)
			Expect(payload["message"]).To(Equal(fmt.Sprintf("User %q re-enabled successfully", "alice")))
			Expect(payload["kubeconfigPath"]).ToNot(BeEmpty())

			By("enabling again, which is a no-op")
			rec = doRequest(http.MethodPost, "/api/users/alice/enable", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["message"]).To(Equal("User already active"))
		})

		It("should delete a user permanently", func() {
			Expect(createAlice().Code).To(Equal(http.StatusCreated))

			rec := doRequest(http.MethodDelete, "/api/users/alice", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["message"]).To(Equal(fmt.Sprintf("User %q deleted permanently", "alice")))

			_, err := store.GetUser(ctxTODO(), "alice")
			Expect(err).To(MatchError(mirror.ErrNotFound))
		})
	})

	Describe("the kubeconfigs endpoint", func() {
		It("should serve the kubeconfig of an active user", func() {
			rec := doRequest(http.MethodPost, "/api/users", map[string]any{"username": "alice"})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = doRequest(http.MethodGet, "/api/kubeconfigs/alice", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/yaml"))
			Expect(rec.Body.String()).To(ContainSubstring("test-cluster"))
		})

		It("should refuse to serve the kubeconfig of a disabled user", func() {
			rec := doRequest(http.MethodPost, "/api/users", map[string]any{"username": "alice"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(doRequest(http.MethodPost, "/api/users/alice/disable", nil).Code).To(Equal(http.StatusOK))

			Expect(doRequest(http.MethodGet, "/api/kubeconfigs/alice", nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("the bindings endpoints", func() {
		validRoleBinding := func() map[string]any {
			return map[string]any{
				"name": "alice-edit", "namespace": "default",
				"subjects": []map[string]string{{"kind": "User", "name": "alice"}},
				"roleRef":  map[string]string{"kind": "ClusterRole", "name": "edit"},
			}
		}

		It("should create a RoleBinding in both stores", func() {
			rec := doRequest(http.MethodPost, "/api/bindings/rolebinding", validRoleBinding())
			Expect(rec.Code).To(Equal(http.StatusCreated))

			_, err := client.RbacV1().RoleBindings("default").Get(ctxTODO(), "alice-edit", metav1.GetOptions{})
			Expect(err).ToNot(HaveOccurred())

			mirrored, err := store.ListRoleBindings(ctxTODO())
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(HaveLen(1))
		})

		It("should reject an incomplete RoleBinding", func() {
			rec := doRequest(http.MethodPost, "/api/bindings/rolebinding", map[string]any{"name": "incomplete"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should create and list ClusterRoleBindings", func() {
			rec := doRequest(http.MethodPost, "/api/bindings/clusterrolebinding", map[string]any{
				"name":     "alice-view",
				"subjects": []map[string]string{{"kind": "User", "name": "alice"}},
				"roleRef":  map[string]string{"kind": "ClusterRole", "name": "view"},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = doRequest(http.MethodGet, "/api/bindings/clusterrolebindings", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var listed []mirror.ClusterRoleBinding
			Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].Name).To(Equal("alice-view"))
		})

		It("should delete a RoleBinding through the unified endpoint", func() {
			Expect(doRequest(http.MethodPost, "/api/bindings/rolebinding", validRoleBinding()).Code).To(Equal(http.StatusCreated))

			rec := doRequest(http.MethodDelete, "/api/bindings", map[string]any{
				"name": "alice-edit", "namespace": "default",
			})
			Expect(rec.Code).To(Equal(http.StatusOK))

			mirrored, err := store.ListRoleBindings(ctxTODO())
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(BeEmpty())
		})

		It("should require a namespace when deleting a namespaced binding", func() {
			rec := doRequest(http.MethodDelete, "/api/bindings", map[string]any{"name": "alice-edit"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return the manifest of a binding", func() {
			Expect(doRequest(http.MethodPost, "/api/bindings/rolebinding", validRoleBinding()).Code).To(Equal(http.StatusCreated))

			rec := doRequest(http.MethodGet, "/api/bindings/yaml/alice-edit?namespace=default", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			manifest := decode(rec)["yaml"].(string)
			Expect(manifest).To(ContainSubstring("kind: RoleBinding"))
			Expect(manifest).To(ContainSubstring("name: alice-edit"))
		})

		It("should apply an updated manifest", func() {
			Expect(doRequest(http.MethodPost, "/api/bindings/rolebinding", validRoleBinding()).Code).To(Equal(http.StatusCreated))

			manifest := `apiVersion: rbac.authorization.k8s.io/v1
kind: RoleBinding
metadata:
  name: alice-edit
  namespace: default
subjects:
- kind: User
  name: bob
  apiGroup: rbac.authorization.k8s.io
roleRef:
  kind: ClusterRole
  name: edit
  apiGroup: rbac.authorization.k8s.io
`
			rec := doRequest(http.MethodPost, "/api/bindings/apply", map[string]any{"yaml": manifest})
			Expect(rec.Code).To(Equal(http.StatusOK))

			mirrored, err := store.ListRoleBindings(ctxTODO())
			Expect(err).ToNot(HaveOccurred())
			Expect(mirrored).To(HaveLen(1))
			Expect(mirrored[0].Subjects).To(ConsistOf(mirror.Subject{Kind: "User", Name: "bob"}))
		})

		It("should reject an apply request without a manifest", func() {
			rec := doRequest(http.MethodPost, "/api/bindings/apply", map[string]any{})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("the roles endpoints", func() {
		readRules := []map[string]any{{
			"apiGroups": []string{""},
			"resources": []string{"pods"},
			"verbs":     []string{"get", "list"},
		}}

		It("should create a role in multiple namespaces", func() {
			rec := doRequest(http.MethodPost, "/api/roles/role", map[string]any{
				"name": "log-reader", "namespaces": []string{"default", "staging"}, "rules": readRules,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			for _, namespace := range []string{"default", "staging"} {
				_, err := client.RbacV1().Roles(namespace).Get(ctxTODO(), "log-reader", metav1.GetOptions{})
				Expect(err).ToNot(HaveOccurred())
			}
		})

		It("should accept the single-namespace shorthand", func() {
			rec := doRequest(http.MethodPost, "/api/roles/role", map[string]any{
				"name": "log-reader", "namespace": "default", "rules": readRules,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
		})

		It("should reject a role without rules", func() {
			rec := doRequest(http.MethodPost, "/api/roles/role", map[string]any{
				"name": "empty", "namespace": "default",
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should create a cluster role", func() {
			rec := doRequest(http.MethodPost, "/api/roles/clusterrole", map[string]any{
				"name": "global-log-reader", "rules": readRules,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			_, err := client.RbacV1().ClusterRoles().Get(ctxTODO(), "global-log-reader", metav1.GetOptions{})
			Expect(err).ToNot(HaveOccurred())
		})

		It("should report the usage of a role", func() {
			Expect(store.UpsertRoleBinding(ctxTODO(), &mirror.RoleBinding{
				Name: "readers", Namespace: "default",
				Subjects: []mirror.Subject{{Kind: "User", Name: "alice"}},
				RoleRef:  mirror.RoleRef{Kind: "Role", Name: "log-reader"},
			})).To(Succeed())

			rec := doRequest(http.MethodGet, "/api/roles/usage?name=log-reader", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			payload := decode(rec)
			Expect(payload["roleBindings"]).To(BeEquivalentTo(1))
			Expect(payload["total"]).To(BeEquivalentTo(1))
		})

		It("should refuse to delete a role still granted by a binding", func() {
			rec := doRequest(http.MethodPost, "/api/roles/role", map[string]any{
				"name": "log-reader", "namespace": "default", "rules": readRules,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(store.UpsertRoleBinding(ctxTODO(), &mirror.RoleBinding{
				Name: "readers", Namespace: "default",
				Subjects: []mirror.Subject{{Kind: "User", Name: "alice"}},
				RoleRef:  mirror.RoleRef{Kind: "Role", Name: "log-reader"},
			})).To(Succeed())

			rec = doRequest(http.MethodDelete, "/api/roles", map[string]any{
				"name": "log-reader", "namespace": "default",
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["error"]).To(ContainSubstring("still bound"))
		})

		It("should delete an unbound role", func() {
			rec := doRequest(http.MethodPost, "/api/roles/role", map[string]any{
				"name": "log-reader", "namespace": "default", "rules": readRules,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = doRequest(http.MethodDelete, "/api/roles", map[string]any{
				"name": "log-reader", "namespace": "default",
			})
			Expect(rec.Code).To(Equal(http.StatusOK))

			_, err := client.RbacV1().Roles("default").Get(ctxTODO(), "log-reader", metav1.GetOptions{})
			Expect(err).To(HaveOccurred())
		})

		It("should return the manifest of a role", func() {
			rec := doRequest(http.MethodGet, "/api/roles/yaml?name=pod-reader&namespace=default", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			manifest := decode(rec)["yaml"].(string)
			Expect(manifest).To(ContainSubstring("kind: Role"))
			Expect(manifest).To(ContainSubstring("name: pod-reader"))
		})
	})

	Describe("the serviceaccounts endpoints", func() {
		It("should provision a service account and mirror it", func() {
			rec := doRequest(http.MethodPost, "/api/serviceaccounts", map[string]any{
				"name": "deployer", "namespace": "default",
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			payload := decode(rec)
			Expect(payload["kubeconfigPath"]).ToNot(BeEmpty())

			rec = doRequest(http.MethodGet, "/api/serviceaccounts", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var accounts []mirror.ServiceAccount
			Expect(json.Unmarshal(rec.Body.Bytes(), &accounts)).To(Succeed())
			Expect(accounts).To(HaveLen(1))
			Expect(accounts[0].Name).To(Equal("deployer"))
		})

		It("should reject an incomplete request", func() {
			rec := doRequest(http.MethodPost, "/api/serviceaccounts", map[string]any{"name": "deployer"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("the catalog endpoints", func() {
		It("should list roles, cluster roles and namespaces", func() {
			rec := doRequest(http.MethodGet, "/api/roles", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("pod-reader"))

			rec = doRequest(http.MethodGet, "/api/clusterroles", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("view"))

			rec = doRequest(http.MethodGet, "/api/namespaces", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var namespaces []string
			Expect(json.Unmarshal(rec.Body.Bytes(), &namespaces)).To(Succeed())
			Expect(namespaces).To(ConsistOf("default", "staging"))
		})
	})

	Describe("the audit endpoint", func() {
		It("should list the audit trail most recent first", func() {
			rec := doRequest(http.MethodPost, "/api/users", map[string]any{"username": "alice"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(doRequest(http.MethodPost, "/api/users/alice/disable", nil).Code).To(Equal(http.StatusOK))

			rec = doRequest(http.MethodGet, "/api/audit", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var entries []mirror.AuditEntry
			Expect(json.Unmarshal(rec.Body.Bytes(), &entries)).To(Succeed())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Action).To(Equal(audit.ActionUserDisabled))
			Expect(entries[1].Action).To(Equal(audit.ActionUserCreated))
		})

		It("should honor the limit parameter", func() {
			rec := doRequest(http.MethodPost, "/api/users", map[string]any{"username": "alice"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(doRequest(http.MethodPost, "/api/users/alice/disable", nil).Code).To(Equal(http.StatusOK))

			rec = doRequest(http.MethodGet, "/api/audit?limit=1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var entries []mirror.AuditEntry
			Expect(json.Unmarshal(rec.Body.Bytes(), &entries)).To(Succeed())
			Expect(entries).To(HaveLen(1))
		})

		It("should reject an invalid limit", func() {
			Expect(doRequest(http.MethodGet, "/api/audit?limit=zero", nil).Code).To(Equal(http.StatusBadRequest))
			Expect(doRequest(http.MethodGet, "/api/audit?limit=-3", nil).Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("the health endpoint", func() {
		It("should report the service as healthy", func() {
			rec := doRequest(http.MethodGet, "/healthz", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["status"]).To(Equal("ok"))
		})
	})
})
