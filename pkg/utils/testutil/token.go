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

package testutil

import (
	authenticationv1 "k8s.io/api/authentication/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

// EnableTokenIssuance installs a reactor on the fake clientset answering
// every service account token request with the given token. The fake tracker
// does not implement the token subresource, hence requests must be handled
// explicitly.
func EnableTokenIssuance(client *fake.Clientset, token string) {
	client.PrependReactor("create", "serviceaccounts/token",
		func(action k8stesting.Action) (handled bool, ret runtime.Object, err error) {
			return true, &authenticationv1.TokenRequest{
				Status: authenticationv1.TokenRequestStatus{Token: token},
			}, nil
		})
}
