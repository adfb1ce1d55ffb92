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

// Package api exposes the rabc backend over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/identity/lifecycle"
	"github.com/rabc-io/rabc/pkg/identity/roles"
	"github.com/rabc-io/rabc/pkg/identity/serviceaccount"
	"github.com/rabc-io/rabc/pkg/mirror"
)

// Server routes the REST API of the rabc backend.
type Server struct {
	router          *httprouter.Router
	users           *lifecycle.Manager
	bindings        *bindings.Manager
	roles           *roles.Manager
	serviceAccounts *serviceaccount.Manager
	store           mirror.Store
	client          kubernetes.Interface
}

// NewServer wires the HTTP surface from its collaborators.
func NewServer(users *lifecycle.Manager, bindingManager *bindings.Manager,
	roleManager *roles.Manager, saManager *serviceaccount.Manager,
	store mirror.Store, client kubernetes.Interface) *Server {
	s := &Server{
		router:          httprouter.New(),
		users:           users,
		bindings:        bindingManager,
		roles:           roleManager,
		serviceAccounts: saManager,
		store:           store,
		client:          client,
	}

	s.router.POST("/api/users", s.createUser)
	s.router.GET("/api/users", s.listUsers)
	s.router.POST("/api/users/:username/disable", s.disableUser)
	s.router.POST("/api/users/:username/enable", s.enableUser)
	s.router.DELETE("/api/users/:username", s.deleteUser)

	s.router.GET("/api/kubeconfigs/:username", s.getKubeconfig)

	s.router.POST("/api/bindings/rolebinding", s.createRoleBinding)
	s.router.POST("/api/bindings/clusterrolebinding", s.createClusterRoleBinding)
	s.router.GET("/api/bindings/rolebindings", s.listRoleBindings)
	s.router.GET("/api/bindings/clusterrolebindings", s.listClusterRoleBindings)
	s.router.DELETE("/api/bindings", s.deleteBinding)
	s.router.GET("/api/bindings/yaml/:name", s.getBindingYAML)
	s.router.POST("/api/bindings/apply", s.applyBindingYAML)

	s.router.POST("/api/roles/role", s.createRole)
	s.router.POST("/api/roles/clusterrole", s.createClusterRole)
	s.router.GET("/api/roles/usage", s.roleUsage)
	s.router.GET("/api/roles/yaml", s.getRoleYAML)
	s.router.DELETE("/api/roles", s.deleteRole)

	s.router.POST("/api/serviceaccounts", s.createServiceAccount)
	s.router.GET("/api/serviceaccounts", s.listServiceAccounts)

	s.router.GET("/api/roles", s.listRoles)
	s.router.GET("/api/clusterroles", s.listClusterRoles)
	s.router.GET("/api/namespaces", s.listNamespaces)
	s.router.GET("/api/audit", s.listAudit)

	s.router.GET("/healthz", s.healthz)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("API server listening on %q", address)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
