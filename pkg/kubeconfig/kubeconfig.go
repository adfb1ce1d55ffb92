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

// Package kubeconfig forges kubeconfig files for issued client certificates.
package kubeconfig

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// Generate forges the kubeconfig authenticating the given user against the
// cluster with the provided client certificate and key.
func Generate(username, clusterName, server string, ca, cert, key []byte) ([]byte, error) {
	contextName := fmt.Sprintf("%s@%s", username, clusterName)

	cnf := clientcmdapi.Config{
		APIVersion: clientcmdapi.SchemeGroupVersion.Version,
		Kind:       "Config",
		Clusters: map[string]*clientcmdapi.Cluster{
			clusterName: {
				Server:                   server,
				CertificateAuthorityData: ca,
			},
		},
		AuthInfos: map[string]*clientcmdapi.AuthInfo{
			username: {
				ClientCertificateData: cert,
				ClientKeyData:         key,
			},
		},
		Contexts: map[string]*clientcmdapi.Context{
			contextName: {
				Cluster:  clusterName,
				AuthInfo: username,
			},
		},
		CurrentContext: contextName,
	}

	kubeconfig, err := clientcmd.Write(cnf)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize the kubeconfig for %q: %w", username, err)
	}
	return kubeconfig, nil
}

// GenerateWithToken forges the kubeconfig authenticating the given identity
// against the cluster with a bearer token, as used for service accounts.
func GenerateWithToken(name, clusterName, server string, ca []byte, token string) ([]byte, error) {
	contextName := fmt.Sprintf("%s@%s", name, clusterName)

	cnf := clientcmdapi.Config{
		APIVersion: clientcmdapi.SchemeGroupVersion.Version,
		Kind:       "Config",
		Clusters: map[string]*clientcmdapi.Cluster{
			clusterName: {
				Server:                   server,
				CertificateAuthorityData: ca,
			},
		},
		AuthInfos: map[string]*clientcmdapi.AuthInfo{
			name: {
				Token: token,
			},
		},
		Contexts: map[string]*clientcmdapi.Context{
			contextName: {
				Cluster:  clusterName,
				AuthInfo: name,
			},
		},
		CurrentContext: contextName,
	}

	kubeconfig, err := clientcmd.Write(cnf)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize the kubeconfig for %q: %w", name, err)
	}
	return kubeconfig, nil
}
