package main

import (
	"testing"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	tests := []config.Config{
		{AuthSecret: "short", OwnerEnrollmentCode: "Balcao-2026-Noite"},
		{AuthSecret: strongSecret, OwnerEnrollmentCode: "abc"},
		{AuthSecret: strongSecret, OwnerEnrollmentCode: "12345678"},
		{AuthSecret: strongSecret, OwnerEnrollmentCode: "zzzzzzzzzz"},
		{AuthSecret: strongSecret, OwnerEnrollmentCode: "cdefghijk"},
		{AuthSecret: strongSecret, OwnerEnrollmentCode: "Admin123"},
	}
	for _, cfg := range tests {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, OwnerEnrollmentCode: "Balcao-2026-Noite"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresEnrollmentCode(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret}); err == nil {
		t.Fatalf("expected missing enrollment code to be rejected")
	}
}
