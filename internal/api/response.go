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
	"errors"
	"net/http"

	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/identity/issuer"
	"github.com/rabc-io/rabc/pkg/identity/lifecycle"
	"github.com/rabc-io/rabc/pkg/identity/roles"
	"github.com/rabc-io/rabc/pkg/mirror"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		klog.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Partial failures
// (issuance, revocation) surface the transition boundary in the message so
// an operator knows where the operation stopped.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *lifecycle.ValidationError
		issuanceErr   *issuer.IssuanceError
		revocationErr *bindings.RevocationError
		inUseErr      *roles.InUseError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &inUseErr):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrUserNotFound), errors.Is(err, mirror.ErrNotFound):
		status = http.StatusNotFound
	case kerrors.IsNotFound(err):
		status = http.StatusNotFound
	case kerrors.IsAlreadyExists(err), kerrors.IsConflict(err):
		status = http.StatusConflict
	case kerrors.IsInvalid(err), kerrors.IsBadRequest(err):
		status = http.StatusBadRequest
	case errors.As(err, &issuanceErr), errors.As(err, &revocationErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		klog.Errorf("Request failed: %v", err)
	} else {
		klog.V(2).Infof("Request failed (%d): %v", status, err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
