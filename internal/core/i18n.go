// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core

// I18nText references a translatable message by its dotted key.
type I18nText struct {
	Key string `json:"key"`
}

// I18n returns an I18nText for key.
func I18n(key string) I18nText {
	return I18nText{Key: key}
}
