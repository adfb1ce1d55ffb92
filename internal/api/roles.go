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
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/rabc-io/rabc/pkg/mirror"
)

type createRoleRequest struct {
	Name string `json:"name"`
	// Namespaces lists the namespaces the role is created in; Namespace is
	// the single-namespace shorthand.
	Namespaces []string            `json:"namespaces"`
	Namespace  string              `json:"namespace"`
	Rules      []mirror.PolicyRule `json:"rules"`
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Namespace != "" {
		req.Namespaces = append(req.Namespaces, req.Namespace)
	}
	if req.Name == "" || len(req.Namespaces) == 0 || len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid Role data"})
		return
	}

	if err := s.roles.CreateRole(r.Context(), req.Name, req.Namespaces, req.Rules); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "name": req.Name, "namespaces": req.Namespaces})
}

type createClusterRoleRequest struct {
	Name  string              `json:"name"`
	Rules []mirror.PolicyRule `json:"rules"`
}

func (s *Server) createClusterRole(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createClusterRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ClusterRole data"})
		return
	}

	if err := s.roles.CreateClusterRole(r.Context(), req.Name, req.Rules); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "name": req.Name})
}

func (s *Server) roleUsage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role name is required"})
		return
	}

	usage, err := s.roles.RoleUsage(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

type deleteRoleRequest struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Cluster   bool   `json:"cluster"`
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req deleteRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role name is required"})
		return
	}

	var err error
	if req.Cluster {
		err = s.roles.DeleteClusterRole(r.Context(), req.Name)
	} else {
		if req.Namespace == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "namespace is required for Roles"})
			return
		}
		err = s.roles.DeleteRole(r.Context(), req.Name, req.Namespace)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// getRoleYAML serves the cluster-side manifest; the namespace query
// parameter selects the namespaced kind.
func (s *Server) getRoleYAML(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	name := r.URL.Query().Get("name")
	namespace := r.URL.Query().Get("namespace")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role name is required"})
		return
	}

	var (
		manifest string
		err      error
	)
	if namespace != "" {
		manifest, err = s.roles.GetRoleYAML(r.Context(), name, namespace)
	} else {
		manifest, err = s.roles.GetClusterRoleYAML(r.Context(), name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"yaml": manifest})
}
