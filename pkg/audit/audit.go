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

// Package audit records lifecycle transitions in the append-only audit trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/mirror"
)

// Lifecycle actions recorded in the audit trail.
const (
	ActionUserCreated   = "USER_CREATED"
	ActionUserDisabled  = "USER_DISABLED"
	ActionUserReenabled = "USER_REENABLED"
	ActionUserDeleted   = "USER_DELETED"
)

// Sink appends lifecycle events to an audit trail.
type Sink interface {
	Record(ctx context.Context, action, entityType, entityID string, metadata map[string]any)
}

// StoreSink is a Sink persisting entries in the mirror store.
type StoreSink struct {
	store mirror.AuditStore
	actor string
}

var _ Sink = &StoreSink{}

// NewStoreSink returns a Sink backed by the given audit store. An empty actor
// defaults to "system".
func NewStoreSink(store mirror.AuditStore, actor string) *StoreSink {
	if actor == "" {
		actor = consts.DefaultActor
	}
	return &StoreSink{store: store, actor: actor}
}

// Record appends an entry to the audit trail. Audit is best-effort
// observability: failures are logged and never propagated, so they cannot
// roll back the transition they describe.
func (s *StoreSink) Record(ctx context.Context, action, entityType, entityID string, metadata map[string]any) {
	entry := &mirror.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      s.actor,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if err := s.store.AppendAudit(ctx, entry); err != nil {
		klog.Errorf("Failed to record audit entry %s for %s %q: %v", action, entityType, entityID, err)
		return
	}

	klog.V(4).Infof("Audit: %s -> %s %q", action, entityType, entityID)
}
