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
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/rabc-io/rabc/pkg/mirror"
)

func (s *Server) createRoleBinding(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var binding mirror.RoleBinding
	if err := json.NewDecoder(r.Body).Decode(&binding); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if binding.Name == "" || binding.Namespace == "" || len(binding.Subjects) == 0 || binding.RoleRef.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid RoleBinding data"})
		return
	}

	if err := s.bindings.CreateRoleBinding(r.Context(), &binding); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "name": binding.Name, "namespace": binding.Namespace})
}

func (s *Server) createClusterRoleBinding(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var binding mirror.ClusterRoleBinding
	if err := json.NewDecoder(r.Body).Decode(&binding); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if binding.Name == "" || len(binding.Subjects) == 0 || binding.RoleRef.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ClusterRoleBinding data"})
		return
	}

	if err := s.bindings.CreateClusterRoleBinding(r.Context(), &binding); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "name": binding.Name})
}

func (s *Server) listRoleBindings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bindings, err := s.store.ListRoleBindings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

func (s *Server) listClusterRoleBindings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bindings, err := s.store.ListClusterRoleBindings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

type deleteBindingRequest struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Cluster   bool   `json:"cluster"`
}

func (s *Server) deleteBinding(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req deleteBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "binding name is required"})
		return
	}

	var err error
	if req.Cluster {
		err = s.bindings.DeleteClusterRoleBinding(r.Context(), req.Name)
	} else {
		if req.Namespace == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "namespace is required for RoleBindings"})
			return
		}
		err = s.bindings.DeleteRoleBinding(r.Context(), req.Name, req.Namespace)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// getBindingYAML serves the cluster-side manifest; the namespace query
// parameter selects the namespaced kind.
func (s *Server) getBindingYAML(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	namespace := r.URL.Query().Get("namespace")

	var (
		manifest string
		err      error
	)
	if namespace != "" {
		manifest, err = s.bindings.GetRoleBindingYAML(r.Context(), name, namespace)
	} else {
		manifest, err = s.bindings.GetClusterRoleBindingYAML(r.Context(), name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"yaml": manifest})
}

type applyBindingRequest struct {
	YAML string `json:"yaml"`
}

func (s *Server) applyBindingYAML(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	var req applyBindingRequest
	if err := json.Unmarshal(body, &req); err != nil || req.YAML == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "YAML required"})
		return
	}

	if err := s.bindings.ApplyYAML(r.Context(), []byte(req.YAML)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
