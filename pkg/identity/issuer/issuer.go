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

// Package issuer drives the certificate-signing-request lifecycle: key and
// CSR generation, submission, approval, and the bounded wait for the signed
// certificate.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	certv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/kubeconfig"
	"github.com/rabc-io/rabc/pkg/storage"
	"github.com/rabc-io/rabc/pkg/utils/names"
)

const (
	// DefaultPollInterval is the delay between two signed-certificate checks.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultPollTimeout bounds the total wait for the signed certificate
	// (30 attempts at the default interval).
	DefaultPollTimeout = 15 * time.Second
)

// IssuanceError is returned when any step of the issuance fails. It is fatal
// to the calling lifecycle transition and never retried automatically.
type IssuanceError struct {
	Reason string
	Err    error
}

func (e *IssuanceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential issuance failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential issuance failed: %s", e.Reason)
}

func (e *IssuanceError) Unwrap() error { return e.Err }

// Bundle is the result of a successful issuance.
type Bundle struct {
	// Dir is the directory exclusively owned by the subject.
	Dir string
	// KeyPath, CertPath and KubeconfigPath locate the persisted material.
	KeyPath        string
	CertPath       string
	KubeconfigPath string
	// Certificate holds the PEM-encoded signed certificate.
	Certificate []byte
}

// ClusterInfo describes the cluster the issued credentials authenticate to.
type ClusterInfo struct {
	Name   string
	Server string
	CA     []byte
}

// Issuer issues client certificates through the cluster certificate
// authority.
type Issuer struct {
	client  kubernetes.Interface
	creds   *storage.CredentialStore
	cluster ClusterInfo

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithPollInterval overrides the certificate polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(i *Issuer) { i.pollInterval = interval }
}

// WithPollTimeout overrides the certificate polling budget.
func WithPollTimeout(timeout time.Duration) Option {
	return func(i *Issuer) { i.pollTimeout = timeout }
}

// New returns an Issuer submitting CSRs through the given clientset and
// persisting credentials in the given store.
func New(client kubernetes.Interface, creds *storage.CredentialStore, cluster ClusterInfo, opts ...Option) *Issuer {
	issuer := &Issuer{
		client:       client,
		creds:        creds,
		cluster:      cluster,
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Issue runs the whole issuance: it generates a fresh key pair and CSR,
// submits it under a unique request name, approves it, waits (bounded) for
// the signed certificate, and persists the resulting credential bundle.
// Certificates are never renewed in place: every call generates fresh
// material under a fresh request name.
func (i *Issuer) Issue(ctx context.Context, username string, groups []string) (*Bundle, error) {
	keyPEM, csrPEM, err := newKeyAndRequest(username, groups)
	if err != nil {
		return nil, &IssuanceError{Reason: "key generation failed", Err: err}
	}

	requestName := names.SigningRequestName(username, time.Now())
	klog.V(2).Infof("Submitting CSR %q for user %q (groups: %v)", requestName, username, groups)

	request := &certv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name: requestName,
			Labels: map[string]string{
				consts.ManagedByLabelKey: consts.ManagedByLabelValue,
				consts.UserNameLabelKey:  names.Sanitize(username),
			},
		},
		Spec: certv1.CertificateSigningRequestSpec{
			Request:    csrPEM,
			SignerName: certv1.KubeAPIServerClientSignerName,
			Usages:     []certv1.KeyUsage{certv1.UsageClientAuth},
		},
	}

	request, err = i.client.CertificatesV1().CertificateSigningRequests().Create(ctx, request, metav1.CreateOptions{})
	if err != nil {
		return nil, &IssuanceError{Reason: "CSR submission failed", Err: err}
	}

	if err := i.approve(ctx, request); err != nil {
		return nil, &IssuanceError{Reason: "CSR approval failed", Err: err}
	}

	certificate, err := i.waitForCertificate(ctx, requestName)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("CSR %q signed", requestName)

	return i.persist(username, requestName, keyPEM, csrPEM, certificate)
}

// approve marks the CSR as approved through its approval subresource.
// Approval is an explicit step: creating the request does not imply it.
func (i *Issuer) approve(ctx context.Context, request *certv1.CertificateSigningRequest) error {
	for idx := range request.Status.Conditions {
		if request.Status.Conditions[idx].Type == certv1.CertificateApproved {
			return nil
		}
	}

	request.Status.Conditions = append(request.Status.Conditions, certv1.CertificateSigningRequestCondition{
		Type:           certv1.CertificateApproved,
		Status:         corev1.ConditionTrue,
		Reason:         consts.CSRApprovalReason,
		Message:        consts.CSRApprovalMessage,
		LastUpdateTime: metav1.Now(),
	})

	_, err := i.client.CertificatesV1().CertificateSigningRequests().
		UpdateApproval(ctx, request.Name, request, metav1.UpdateOptions{})
	return err
}

// waitForCertificate polls the CSR until its certificate field is populated,
// the budget expires, or the caller cancels the context.
func (i *Issuer) waitForCertificate(ctx context.Context, requestName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, i.pollTimeout)
	defer cancel()

	var certificate []byte
	err := wait.PollUntilContextCancel(ctx, i.pollInterval, true, func(ctx context.Context) (done bool, err error) {
		request, err := i.client.CertificatesV1().CertificateSigningRequests().Get(ctx, requestName, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		if len(request.Status.Certificate) > 0 {
			certificate = request.Status.Certificate
			return true, nil
		}
		return false, nil
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, &IssuanceError{Reason: "not signed within timeout", Err: err}
	case err != nil:
		return nil, &IssuanceError{Reason: "failed waiting for the CSR to be signed", Err: err}
	}

	return certificate, nil
}

func (i *Issuer) persist(username, requestName string, keyPEM, csrPEM, certificate []byte) (*Bundle, error) {
	keyPath, err := i.creds.WriteKey(username, requestName, keyPEM)
	if err != nil {
		return nil, &IssuanceError{Reason: "unable to persist the private key", Err: err}
	}
	if _, err := i.creds.WriteCSR(username, requestName, csrPEM); err != nil {
		return nil, &IssuanceError{Reason: "unable to persist the CSR", Err: err}
	}
	certPath, err := i.creds.WriteCertificate(username, requestName, certificate)
	if err != nil {
		return nil, &IssuanceError{Reason: "unable to persist the certificate", Err: err}
	}

	kcfg, err := kubeconfig.Generate(username, i.cluster.Name, i.cluster.Server, i.cluster.CA, certificate, keyPEM)
	if err != nil {
		return nil, &IssuanceError{Reason: "unable to generate the kubeconfig", Err: err}
	}
	kubeconfigPath, err := i.creds.WriteKubeconfig(username, requestName, kcfg)
	if err != nil {
		return nil, &IssuanceError{Reason: "unable to persist the kubeconfig", Err: err}
	}

	return &Bundle{
		Dir:            i.creds.IssuanceDir(username, requestName),
		KeyPath:        keyPath,
		CertPath:       certPath,
		KubeconfigPath: kubeconfigPath,
		Certificate:    certificate,
	}, nil
}
