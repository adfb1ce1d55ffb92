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

// Package serviceaccount provisions ServiceAccounts with a ready-to-use,
// token-based kubeconfig. The requested token is written into the kubeconfig
// file only; the mirror store records the account and the kubeconfig path,
// never the token itself.
package serviceaccount

import (
	"context"
	"fmt"

	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/identity/issuer"
	"github.com/rabc-io/rabc/pkg/kubeconfig"
	"github.com/rabc-io/rabc/pkg/mirror"
	"github.com/rabc-io/rabc/pkg/storage"
)

// Manager provisions service accounts and their kubeconfigs.
type Manager struct {
	client  kubernetes.Interface
	creds   *storage.CredentialStore
	store   mirror.ServiceAccountStore
	cluster issuer.ClusterInfo
}

// NewManager returns a service account Manager targeting the given cluster.
func NewManager(client kubernetes.Interface, creds *storage.CredentialStore,
	store mirror.ServiceAccountStore, cluster issuer.ClusterInfo) *Manager {
	return &Manager{client: client, creds: creds, store: store, cluster: cluster}
}

// Provision creates the service account, requests a token for it, and writes
// a kubeconfig authenticating with that token. The returned record has
// already been mirrored.
func (m *Manager) Provision(ctx context.Context, name, namespace string) (*mirror.ServiceAccount, error) {
	klog.Infof("Provisioning ServiceAccount %s/%s", namespace, name)

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{consts.ManagedByLabelKey: consts.ManagedByLabelValue},
		},
	}
	if _, err := m.client.CoreV1().ServiceAccounts(namespace).Create(ctx, sa, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("unable to create ServiceAccount %s/%s: %w", namespace, name, err)
	}

	tokenRequest := &authenticationv1.TokenRequest{Spec: authenticationv1.TokenRequestSpec{}}
	response, err := m.client.CoreV1().ServiceAccounts(namespace).CreateToken(ctx, name, tokenRequest, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("unable to request a token for ServiceAccount %s/%s: %w", namespace, name, err)
	}

	kcfg, err := kubeconfig.GenerateWithToken(name, m.cluster.Name, m.cluster.Server, m.cluster.CA, response.Status.Token)
	if err != nil {
		return nil, err
	}
	path, err := m.creds.WriteServiceAccountKubeconfig(namespace, name, kcfg)
	if err != nil {
		return nil, err
	}

	record := &mirror.ServiceAccount{Name: name, Namespace: namespace, KubeconfigPath: path}
	if err := m.store.UpsertServiceAccount(ctx, record); err != nil {
		klog.Errorf("Mirror inconsistency: ServiceAccount %s/%s provisioned but not mirrored: %v",
			namespace, name, err)
		return nil, fmt.Errorf("unable to mirror ServiceAccount %s/%s: %w", namespace, name, err)
	}

	klog.Infof("ServiceAccount %s/%s provisioned, kubeconfig at %q", namespace, name, path)
	return record, nil
}

// List returns the mirrored service accounts.
func (m *Manager) List(ctx context.Context) ([]mirror.ServiceAccount, error) {
	return m.store.ListServiceAccounts(ctx)
}
