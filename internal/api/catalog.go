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
	"net/http"

	"github.com/julienschmidt/httprouter"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type roleSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// listRoles returns the Roles known to the cluster, so that clients can
// build RoleRefs without guessing names. The namespace query parameter
// restricts the listing; the default spans all namespaces.
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	namespace := r.URL.Query().Get("namespace")

	roles, err := s.client.RbacV1().Roles(namespace).List(r.Context(), metav1.ListOptions{})
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]roleSummary, 0, len(roles.Items))
	for i := range roles.Items {
		summaries = append(summaries, roleSummary{Name: roles.Items[i].Name, Namespace: roles.Items[i].Namespace})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) listClusterRoles(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	roles, err := s.client.RbacV1().ClusterRoles().List(r.Context(), metav1.ListOptions{})
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]roleSummary, 0, len(roles.Items))
	for i := range roles.Items {
		summaries = append(summaries, roleSummary{Name: roles.Items[i].Name})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) listNamespaces(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	namespaces, err := s.client.CoreV1().Namespaces().List(r.Context(), metav1.ListOptions{})
	if err != nil {
		writeError(w, err)
		return
	}

	names := make([]string, 0, len(namespaces.Items))
	for i := range namespaces.Items {
		names = append(names, namespaces.Items[i].Name)
	}
	writeJSON(w, http.StatusOK, names)
}
