// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package core contains the canonical messaging types shared by every
// provider: tenant context, destinations, message envelopes, i18n text and
// the error taxonomy surfaced in operation results.
package core
