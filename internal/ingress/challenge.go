// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package ingress

import (
	"context"
	"net/http"

	"github.com/greentic/messaging-providers/internal/capability"
)

// Challenge answers the Meta webhook subscription handshake: a GET with
// hub.mode=subscribe, hub.verify_token and hub.challenge. handled is false
// when in is not a handshake.
func Challenge(ctx context.Context, in HTTPIn, secrets capability.SecretStore) (out HTTPOut, handled bool) {
	q := in.QueryValues()
	if in.Method != http.MethodGet || q.Get("hub.mode") != "subscribe" {
		return HTTPOut{}, false
	}
	if err := CheckVerifyToken(ctx, secrets, q.Get("hub.verify_token")); err != nil {
		RecordVerdict("whatsapp", VerdictRejected)
		return ErrorOut(http.StatusForbidden, err.Error()), true
	}
	RecordVerdict("whatsapp", VerdictChallenge)
	return TextOut(http.StatusOK, q.Get("hub.challenge")), true
}
