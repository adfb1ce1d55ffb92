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
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/rabc-io/rabc/pkg/mirror"
)

type createUserRequest struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	start := time.Now()
	result, err := s.users.Create(r.Context(), req.Username, req.Groups)
	observeOperation("create", err)
	if err != nil {
		writeError(w, err)
		return
	}
	issuanceDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, result.User)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) disableUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")

	result, err := s.users.Disable(r.Context(), username)
	observeOperation("disable", err)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Unchanged {
		writeJSON(w, http.StatusOK, map[string]string{"message": "User already disabled"})
		return
	}

	revokedBindings.Add(float64(result.RevokedBindings))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         fmt.Sprintf("User %q disabled (soft revoke)", username),
		"revokedBindings": result.RevokedBindings,
	})
}

func (s *Server) enableUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")

	start := time.Now()
	result, err := s.users.Enable(r.Context(), username)
	observeOperation("enable", err)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Unchanged {
		writeJSON(w, http.StatusOK, map[string]string{"message": "User already active"})
		return
	}
	issuanceDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        fmt.Sprintf("User %q re-enabled successfully", username),
		"kubeconfigPath": result.User.KubeconfigPath,
	})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")

	result, err := s.users.Delete(r.Context(), username)
	observeOperation("delete", err)
	if err != nil {
		writeError(w, err)
		return
	}

	revokedBindings.Add(float64(result.RevokedBindings))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         fmt.Sprintf("User %q deleted permanently", username),
		"revokedBindings": result.RevokedBindings,
	})
}

func (s *Server) getKubeconfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")

	user, err := s.store.GetUser(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	if user.Status != mirror.UserActive || user.KubeconfigPath == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no kubeconfig available: user is disabled"})
		return
	}

	kubeconfig, err := os.ReadFile(user.KubeconfigPath)
	if err != nil {
		writeError(w, fmt.Errorf("unable to read the kubeconfig of %q: %w", username, err))
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", username+".kubeconfig"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(kubeconfig)
}
