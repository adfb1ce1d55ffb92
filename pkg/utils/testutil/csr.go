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

// Package testutil provides helpers shared across the test suites.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	certv1 "k8s.io/api/certificates/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

// FakeSelfSignedCertificate returns the content of a self-signed certificate
// for testing purposes.
func FakeSelfSignedCertificate(commonName string) (certificate []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	cert := &x509.Certificate{
		SerialNumber:          big.NewInt(99),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"rabc.io"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		IsCA:                  false,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, cert, cert, pub, priv)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certBytes}), nil
}

// EnableCSRSigning installs a reactor on the fake clientset populating the
// certificate field of every created CSR, mimicking a signer that signs
// requests as soon as they are submitted.
func EnableCSRSigning(client *fake.Clientset, certificate []byte) {
	client.PrependReactor("create", "certificatesigningrequests",
		func(action k8stesting.Action) (handled bool, ret runtime.Object, err error) {
			request := action.(k8stesting.CreateAction).GetObject().(*certv1.CertificateSigningRequest)
			request.Status.Certificate = certificate
			// Fall through to the default reactor, which stores the object.
			return false, nil, nil
		})
}
