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

// Package storage manages the per-user credential directories.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// CredentialStore owns the directory tree holding user credentials. Each
// user owns an exclusive directory; each issuance writes its private key,
// CSR, signed certificate and kubeconfig under a per-request subdirectory,
// so re-issued credentials never reuse the paths of revoked ones. The whole
// user directory is removed as a unit on disable and delete.
type CredentialStore struct {
	baseDir string
}

// NewCredentialStore returns a store rooted at the given data directory.
func NewCredentialStore(baseDir string) *CredentialStore {
	return &CredentialStore{baseDir: baseDir}
}

// UserDir returns the directory owned by the given user.
func (s *CredentialStore) UserDir(username string) string {
	return filepath.Join(s.baseDir, "users", username)
}

// IssuanceDir returns the directory holding the credentials of one issuance.
func (s *CredentialStore) IssuanceDir(username, requestName string) string {
	return filepath.Join(s.UserDir(username), requestName)
}

// WriteKey persists the private key of the given issuance.
func (s *CredentialStore) WriteKey(username, requestName string, data []byte) (string, error) {
	return s.write(username, requestName, username+".key", data, 0o600)
}

// WriteCSR persists the certificate signing request of the given issuance.
func (s *CredentialStore) WriteCSR(username, requestName string, data []byte) (string, error) {
	return s.write(username, requestName, username+".csr", data, 0o644)
}

// WriteCertificate persists the signed certificate of the given issuance.
func (s *CredentialStore) WriteCertificate(username, requestName string, data []byte) (string, error) {
	return s.write(username, requestName, username+".crt", data, 0o644)
}

// WriteKubeconfig persists the generated kubeconfig of the given issuance.
func (s *CredentialStore) WriteKubeconfig(username, requestName string, data []byte) (string, error) {
	return s.write(username, requestName, username+".kubeconfig", data, 0o600)
}

func (s *CredentialStore) write(username, requestName, filename string, data []byte, mode os.FileMode) (string, error) {
	dir := s.IssuanceDir(username, requestName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("unable to create credential directory for %q: %w", username, err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, mode); err != nil {
		return "", fmt.Errorf("unable to write %q: %w", path, err)
	}
	return path, nil
}

// WriteServiceAccountKubeconfig persists the token-based kubeconfig of a
// provisioned service account. Tokens are never persisted anywhere else.
func (s *CredentialStore) WriteServiceAccountKubeconfig(namespace, name string, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, "serviceaccounts", namespace)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("unable to create service account directory for %s/%s: %w", namespace, name, err)
	}

	path := filepath.Join(dir, name+".kubeconfig")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("unable to write %q: %w", path, err)
	}
	return path, nil
}

// Cleanup removes the user's credential directory and the tracked
// kubeconfig. Disabling destroys key material on purpose: re-enabling always
// issues a fresh certificate. Missing files are not an error, and removal
// failures are logged rather than propagated.
func (s *CredentialStore) Cleanup(username, certDir, kubeconfigPath string) {
	if kubeconfigPath != "" {
		if err := os.Remove(kubeconfigPath); err != nil && !os.IsNotExist(err) {
			klog.Errorf("Failed to remove kubeconfig %q: %v", kubeconfigPath, err)
		}
	}

	if certDir != "" {
		if err := os.RemoveAll(certDir); err != nil {
			klog.Errorf("Failed to remove credential directory %q: %v", certDir, err)
		}
	}

	if err := os.RemoveAll(s.UserDir(username)); err != nil {
		klog.Errorf("Failed to remove user directory %q: %v", s.UserDir(username), err)
	}
}
