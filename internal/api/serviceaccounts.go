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
)

type createServiceAccountRequest struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func (s *Server) createServiceAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createServiceAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Namespace == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ServiceAccount data"})
		return
	}

	record, err := s.serviceAccounts.Provision(r.Context(), req.Name, req.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) listServiceAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	accounts, err := s.serviceAccounts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}
