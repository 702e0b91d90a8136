// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import "testing"

func TestConfigValid(t *testing.T) {
	if err := DefaultConfig("example.com", "Example").Valid(); err != nil {
		t.Fatalf("DefaultConfig is not valid: %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rp name", func(c *Config) { c.RPName = "" }},
		{"empty rp id", func(c *Config) { c.RPID = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"challenge too short", func(c *Config) { c.ChallengeLength = 8 }},
		{"challenge too long", func(c *Config) { c.ChallengeLength = 128 }},
		{"bad attachment", func(c *Config) { c.AuthenticatorAttachment = "floating" }},
		{"bad resident key", func(c *Config) { c.ResidentKey = "maybe" }},
		{"bad user verification", func(c *Config) { c.UserVerification = "sometimes" }},
		{"bad attestation", func(c *Config) { c.Attestation = "enterprise" }},
		{"no algorithms", func(c *Config) { c.CredentialAlgs = nil }},
		{"unsupported algorithm", func(c *Config) { c.CredentialAlgs = []int{COSEAlgES384} }},
		{"unknown counter mode", func(c *Config) { c.CounterMode = CounterMode(99) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig("example.com", "Example")
			tc.mutate(c)
			if err := c.Valid(); err == nil {
				t.Error("Valid() accepted a broken config")
			}
		})
	}
}
